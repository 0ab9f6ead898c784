package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/metrics"
	"church-portal-be/internal/repository/contract"
	"church-portal-be/internal/repository/specification"
	"church-portal-be/internal/repository/unitofwork"
	"church-portal-be/internal/storage"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/robfig/cron/v3"
)

const (
	markFailedAttempts = 3
	interruptedReason  = "Report generation was interrupted"
)

// ReportNotifier is told about every terminal job transition.
type ReportNotifier interface {
	ReportReady(ctx context.Context, job *entity.ReportJob, report *entity.FileResource)
	ReportFailed(ctx context.Context, job *entity.ReportJob, reason string)
}

type ReportWorkerConfig struct {
	PollInterval  time.Duration
	RenderTimeout time.Duration
	WakeTopic     string
}

// ReportWorker processes queued report jobs one at a time.
type ReportWorker struct {
	uowFactory unitofwork.RepositoryFactory
	store      storage.ObjectStore
	renderer   Renderer
	notifier   ReportNotifier
	wake       message.Subscriber
	cfg        ReportWorkerConfig
	logger     logger.ILogger

	running sync.Mutex
	cron    *cron.Cron

	// unresolved is a job whose failure could not be recorded. Guarded by running.
	unresolved   *failedJob
	retryBackoff time.Duration
}

type failedJob struct {
	job    *entity.ReportJob
	reason string
	start  time.Time
}

func NewReportWorker(
	uowFactory unitofwork.RepositoryFactory,
	store storage.ObjectStore,
	renderer Renderer,
	notifier ReportNotifier,
	wake message.Subscriber,
	cfg ReportWorkerConfig,
	log logger.ILogger,
) *ReportWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 2 * time.Minute
	}
	return &ReportWorker{
		uowFactory: uowFactory,
		store:      store,
		renderer:   renderer,
		notifier:   notifier,
		wake:       wake,
		cfg:        cfg,
		logger:     log,

		retryBackoff: 200 * time.Millisecond,
	}
}

// Start fails jobs left PROCESSING by a previous run, then schedules Tick every
// PollInterval and on every wake-up message until ctx ends.
func (w *ReportWorker) Start(ctx context.Context) error {
	if err := w.recoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recover interrupted report jobs: %w", err)
	}

	w.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{w.logger}),
		cron.SkipIfStillRunning(cronLogger{w.logger}),
	))
	spec := fmt.Sprintf("@every %s", w.cfg.PollInterval)
	if _, err := w.cron.AddFunc(spec, func() { w.tickAndLog(ctx) }); err != nil {
		return fmt.Errorf("schedule report worker: %w", err)
	}

	if w.wake != nil && w.cfg.WakeTopic != "" {
		messages, err := w.wake.Subscribe(ctx, w.cfg.WakeTopic)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", w.cfg.WakeTopic, err)
		}
		go func() {
			for msg := range messages {
				msg.Ack()
				w.tickAndLog(ctx)
			}
		}()
	}

	w.cron.Start()
	w.logger.Info("ReportWorker", "Report worker started", map[string]interface{}{
		"interval": w.cfg.PollInterval.String(),
	})
	return nil
}

// Stop halts scheduling and waits for a scheduled tick to return.
func (w *ReportWorker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
}

func (w *ReportWorker) tickAndLog(ctx context.Context) {
	if _, err := w.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("ReportWorker", "Tick failed", map[string]interface{}{"error": err})
	}
}

// Tick claims and processes the oldest PENDING job. It returns false without waiting when
// another tick is in progress or nothing is queued.
func (w *ReportWorker) Tick(ctx context.Context) (bool, error) {
	if !w.running.TryLock() {
		return false, nil
	}
	defer w.running.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	// Nothing new is claimed while an earlier job still reads PROCESSING.
	if pending := w.unresolved; pending != nil {
		if err := w.recordFailure(ctx, pending); err != nil {
			return false, fmt.Errorf("record failure of report job %s: %w", pending.job.Id, err)
		}
		w.unresolved = nil
	}

	uow := w.uowFactory.NewUnitOfWork(ctx)
	job, err := uow.ReportJobRepository().ClaimNextPending(ctx)
	if err != nil {
		return false, fmt.Errorf("claim report job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.logger.Info("ReportWorker", "Processing report job", map[string]interface{}{
		"job_id": job.Id.String(),
		"type":   job.Type,
	})
	w.process(ctx, job)
	return true, nil
}

func (w *ReportWorker) process(ctx context.Context, job *entity.ReportJob) {
	start := time.Now()

	doc, err := w.render(ctx, job)
	if err != nil {
		w.fail(ctx, job, err, start)
		return
	}

	report, err := w.saveReport(ctx, job, doc)
	if err != nil {
		w.fail(ctx, job, err, start)
		return
	}

	job.Status = entity.ReportJobCompleted
	job.Progress = 100
	job.ReportRef = &report.Id
	metrics.ObserveReportJob(string(entity.ReportJobCompleted), time.Since(start))
	w.logger.Info("ReportWorker", "Report job completed", map[string]interface{}{
		"job_id":     job.Id.String(),
		"report_ref": report.Id.String(),
		"size_bytes": report.SizeBytes,
	})

	if w.notifier != nil {
		w.notifier.ReportReady(ctx, job, report)
	}
}

func (w *ReportWorker) render(ctx context.Context, job *entity.ReportJob) (doc *RenderedReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()

	renderCtx, cancel := context.WithTimeout(ctx, w.cfg.RenderTimeout)
	defer cancel()

	doc, err = w.renderer.Render(renderCtx, job)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Content) == 0 {
		return nil, errors.New("renderer returned an empty document")
	}
	return doc, nil
}

// saveReport writes the document, then records it and marks the job COMPLETED in one unit of work.
func (w *ReportWorker) saveReport(ctx context.Context, job *entity.ReportJob, doc *RenderedReport) (*entity.FileResource, error) {
	key := path.Join("tenants", job.TenantId, entity.FileKindReport, job.Id.String()+doc.Extension)
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := w.store.Put(ctx, key, bytes.NewReader(doc.Content), int64(len(doc.Content)), contentType); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	report := &entity.FileResource{
		TenantId:     job.TenantId,
		OwnerId:      job.RequesterId,
		Kind:         entity.FileKindReport,
		Path:         key,
		OriginalName: fmt.Sprintf("%s-report%s", strings.ToLower(job.Type), doc.Extension),
		ContentType:  contentType,
		SizeBytes:    int64(len(doc.Content)),
		Backend:      w.store.Name(),
	}

	if err := w.commit(ctx, job, report); err != nil {
		if delErr := w.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			w.logger.Warn("ReportWorker", "Failed to remove orphaned report", map[string]interface{}{
				"key":   key,
				"error": delErr,
			})
		}
		return nil, err
	}
	return report, nil
}

func (w *ReportWorker) commit(ctx context.Context, job *entity.ReportJob, report *entity.FileResource) (err error) {
	uow := w.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			uow.Rollback()
		}
	}()

	if err = uow.FileResourceRepository().Create(ctx, report); err != nil {
		return fmt.Errorf("record report file: %w", err)
	}
	if err = uow.ReportJobRepository().MarkCompleted(ctx, job.Id, report.Id, time.Now()); err != nil {
		return fmt.Errorf("complete report job: %w", err)
	}
	if err = uow.Commit(); err != nil {
		return fmt.Errorf("commit report job: %w", err)
	}
	return nil
}

func (w *ReportWorker) fail(ctx context.Context, job *entity.ReportJob, cause error, start time.Time) {
	w.logger.Error("ReportWorker", "Report job failed", map[string]interface{}{
		"job_id": job.Id.String(),
		"error":  cause,
	})

	failed := &failedJob{job: job, reason: cause.Error(), start: start}
	if err := w.recordFailure(ctx, failed); err != nil {
		w.logger.Error("ReportWorker", "Failed to mark report job as failed", map[string]interface{}{
			"job_id": job.Id.String(),
			"error":  err,
		})
		w.unresolved = failed
	}
}

// recordFailure moves the job to FAILED and notifies the requester. A job that already left
// PROCESSING counts as recorded.
func (w *ReportWorker) recordFailure(ctx context.Context, failed *failedJob) error {
	// Record the failure even if the tick context was cancelled mid-render.
	persistCtx := context.WithoutCancel(ctx)
	err := w.markFailed(ctx, persistCtx, failed)
	if errors.Is(err, contract.ErrJobNotProcessing) {
		w.logger.Warn("ReportWorker", "Report job already left PROCESSING", map[string]interface{}{
			"job_id": failed.job.Id.String(),
		})
		return nil
	}
	if err != nil {
		return err
	}

	job := failed.job
	job.Status = entity.ReportJobFailed
	job.ErrorMessage = &failed.reason
	metrics.ObserveReportJob(string(entity.ReportJobFailed), time.Since(failed.start))

	if w.notifier != nil {
		w.notifier.ReportFailed(persistCtx, job, failed.reason)
	}
	return nil
}

func (w *ReportWorker) markFailed(ctx, persistCtx context.Context, failed *failedJob) error {
	var err error
	for attempt := 1; attempt <= markFailedAttempts; attempt++ {
		uow := w.uowFactory.NewUnitOfWork(persistCtx)
		err = uow.ReportJobRepository().MarkFailed(persistCtx, failed.job.Id, failed.reason)
		if err == nil || errors.Is(err, contract.ErrJobNotProcessing) || attempt == markFailedAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * w.retryBackoff):
		}
	}
	return err
}

// recoverInterrupted fails every job still PROCESSING. Before the first tick of this process
// such a job belongs to a run that ended mid-job.
func (w *ReportWorker) recoverInterrupted(ctx context.Context) error {
	w.running.Lock()
	defer w.running.Unlock()

	uow := w.uowFactory.NewUnitOfWork(ctx)
	jobs, err := uow.ReportJobRepository().FindAll(ctx, specification.ByStatus{Status: string(entity.ReportJobProcessing)})
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := w.recordFailure(ctx, &failedJob{job: job, reason: interruptedReason, start: time.Now()}); err != nil {
			return fmt.Errorf("fail report job %s: %w", job.Id, err)
		}
	}
	if len(jobs) > 0 {
		w.logger.Warn("ReportWorker", "Failed interrupted report jobs", map[string]interface{}{
			"count": len(jobs),
		})
	}
	return nil
}

// cronLogger routes cron's own messages into the application logger.
type cronLogger struct {
	log logger.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("ReportWorker", msg, kvDetails(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	details := kvDetails(keysAndValues)
	details["error"] = err
	l.log.Error("ReportWorker", msg, details)
}

func kvDetails(kv []interface{}) map[string]interface{} {
	details := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		details[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return details
}
