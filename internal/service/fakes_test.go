package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"church-portal-be/internal/entity"
	"church-portal-be/internal/model"
	"church-portal-be/internal/repository"
	"church-portal-be/internal/repository/contract"
	"church-portal-be/internal/repository/specification"
	"church-portal-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memoryDB backs every fake repository of one test.
type memoryDB struct {
	mu            sync.Mutex
	jobs          map[uuid.UUID]*entity.ReportJob
	files         map[uuid.UUID]*entity.FileResource
	notifications []model.Notification
	clock         time.Time
	failFiles     error

	// markFailedErrs makes the next MarkFailed calls fail.
	markFailedErrs int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		jobs:  make(map[uuid.UUID]*entity.ReportJob),
		files: make(map[uuid.UUID]*entity.FileResource),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (db *memoryDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

func (db *memoryDB) job(id uuid.UUID) *entity.ReportJob {
	db.mu.Lock()
	defer db.mu.Unlock()
	if j, ok := db.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

func (db *memoryDB) setStatus(id uuid.UUID, status entity.ReportJobStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.jobs[id].Status = status
}

func (db *memoryDB) failNextMarkFailed(n int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.markFailedErrs = n
}

func (db *memoryDB) countStatus(status entity.ReportJobStatus) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, j := range db.jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

func (db *memoryDB) notificationsCopy() []model.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]model.Notification(nil), db.notifications...)
}

type fakeFactory struct{ db *memoryDB }

func (f fakeFactory) NewUnitOfWork(_ context.Context) unitofwork.UnitOfWork {
	return &fakeUoW{db: f.db}
}

type fakeUoW struct {
	db         *memoryDB
	began      bool
	rolledBack bool
}

func (u *fakeUoW) Begin(_ context.Context) error { u.began = true; return nil }
func (u *fakeUoW) Commit() error                 { return nil }
func (u *fakeUoW) Rollback() error               { u.rolledBack = true; return nil }

func (u *fakeUoW) ReportJobRepository() contract.ReportJobRepository {
	return &fakeJobs{db: u.db}
}

func (u *fakeUoW) FileResourceRepository() contract.FileResourceRepository {
	return &fakeFiles{db: u.db}
}

func (u *fakeUoW) NotificationRepository() repository.NotificationRepository {
	return &fakeNotifications{db: u.db}
}

type fakeJobs struct{ db *memoryDB }

func (r *fakeJobs) Create(_ context.Context, job *entity.ReportJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if job.Id == uuid.Nil {
		job.Id = uuid.New()
	}
	now := r.db.tick()
	job.CreatedAt, job.UpdatedAt = now, now
	cp := *job
	r.db.jobs[job.Id] = &cp
	return nil
}

func (r *fakeJobs) match(j *entity.ReportJob, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.ByID:
			if j.Id != s.ID {
				return false
			}
		case specification.ByRequesterID:
			if j.RequesterId != s.RequesterID {
				return false
			}
		case specification.ByStatus:
			if string(j.Status) != s.Status {
				return false
			}
		}
	}
	return true
}

func (r *fakeJobs) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ReportJob, error) {
	all, _ := r.FindAll(ctx, specs...)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (r *fakeJobs) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.ReportJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*entity.ReportJob
	for _, j := range r.db.jobs {
		if r.match(j, specs) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.OrderBy:
			if s.Desc {
				sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
			}
		case specification.Pagination:
			if s.Offset >= len(out) {
				out = nil
			} else {
				out = out[s.Offset:]
			}
			if s.Limit > 0 && len(out) > s.Limit {
				out = out[:s.Limit]
			}
		}
	}
	return out, nil
}

func (r *fakeJobs) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

func (r *fakeJobs) ClaimNextPending(_ context.Context) (*entity.ReportJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var oldest *entity.ReportJob
	for _, j := range r.db.jobs {
		if j.Status == entity.ReportJobPending && (oldest == nil || j.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	oldest.Status = entity.ReportJobProcessing
	oldest.Progress = 10
	cp := *oldest
	return &cp, nil
}

func (r *fakeJobs) MarkCompleted(_ context.Context, id uuid.UUID, reportRef uuid.UUID, completedAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	j, ok := r.db.jobs[id]
	if !ok || j.Status != entity.ReportJobProcessing {
		return contract.ErrJobNotProcessing
	}
	ref := reportRef
	j.Status, j.Progress, j.ReportRef, j.CompletedAt = entity.ReportJobCompleted, 100, &ref, &completedAt
	return nil
}

func (r *fakeJobs) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.markFailedErrs > 0 {
		r.db.markFailedErrs--
		return errors.New("connection reset")
	}
	j, ok := r.db.jobs[id]
	if !ok || j.Status != entity.ReportJobProcessing {
		return contract.ErrJobNotProcessing
	}
	msg := message
	j.Status, j.ErrorMessage = entity.ReportJobFailed, &msg
	return nil
}

func (r *fakeJobs) DeletePending(_ context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	j, ok := r.db.jobs[id]
	if !ok || j.Status != entity.ReportJobPending {
		return false, nil
	}
	delete(r.db.jobs, id)
	return true, nil
}

type fakeFiles struct{ db *memoryDB }

func (r *fakeFiles) Create(_ context.Context, file *entity.FileResource) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failFiles != nil {
		return r.db.failFiles
	}
	file.Id = uuid.New()
	file.CreatedAt = r.db.tick()
	cp := *file
	r.db.files[file.Id] = &cp
	return nil
}

func (r *fakeFiles) FindOne(_ context.Context, specs ...specification.Specification) (*entity.FileResource, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, f := range r.db.files {
		for _, spec := range specs {
			if s, ok := spec.(specification.ByID); ok && s.ID == f.Id {
				cp := *f
				return &cp, nil
			}
		}
	}
	return nil, nil
}

type fakeNotifications struct{ db *memoryDB }

func (r *fakeNotifications) CreateNotification(_ context.Context, n *model.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.notifications = append(r.db.notifications, *n)
	return nil
}

func (r *fakeNotifications) GetNotificationsByUserID(_ context.Context, userID string, limit, offset int) ([]model.Notification, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []model.Notification
	for _, n := range r.db.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeNotifications) GetUnreadCount(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, item := range r.db.notifications {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *fakeNotifications) MarkAsRead(_ context.Context, userID string, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.notifications {
		if r.db.notifications[i].ID == id && r.db.notifications[i].UserID == userID {
			r.db.notifications[i].IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeNotifications) MarkAllAsRead(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for i := range r.db.notifications {
		if r.db.notifications[i].UserID == userID && !r.db.notifications[i].IsRead {
			r.db.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

type sentNotification struct {
	userID string
	notif  model.Notification
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (d *fakeDelivery) Send(userID string, n model.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentNotification{userID: userID, notif: n})
}

func (d *fakeDelivery) Broadcast(n model.Notification) {
	d.Send("", n)
}

func (d *fakeDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}
