package service

import (
	"context"
	"errors"
	"testing"

	"church-portal-be/internal/constant"
	"church-portal-be/internal/entity"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

type recordingMailer struct {
	ready  []string
	failed []string
}

func (m *recordingMailer) SendReportReady(to, _, _ string) error {
	m.ready = append(m.ready, to)
	return nil
}

func (m *recordingMailer) SendReportFailed(to, _, _, _ string) error {
	m.failed = append(m.failed, to)
	return nil
}

func TestReportReadyPublishesAndMails(t *testing.T) {
	db := newMemoryDB()
	delivery := &fakeDelivery{}
	pub := &recordingPublisher{err: errors.New("nats down")}
	mail := &recordingMailer{}
	svc := NewNotificationService(&fakeNotifications{db: db}, delivery, pub, mail, logger.NewNopLogger())

	job := &entity.ReportJob{
		Id:          uuid.New(),
		Type:        "FINANCIAL",
		RequesterId: "u-a",
		TenantId:    "t-1",
		Params:      map[string]interface{}{"notifyEmail": "treasurer@example.org"},
	}
	report := &entity.FileResource{Id: uuid.New()}

	svc.ReportReady(context.Background(), job, report)

	require.Len(t, pub.events, 1)
	assert.Equal(t, constant.EventReportReady, pub.events[0].EventType())
	assert.Equal(t, report.Id.String(), pub.events[0].Payload()["report_ref"])
	assert.Equal(t, []string{"treasurer@example.org"}, mail.ready)

	require.Len(t, delivery.sent, 1)
	assert.Equal(t, "u-a", delivery.sent[0].userID)
	assert.JSONEq(t, `{"job_id":"`+job.Id.String()+`","report_type":"FINANCIAL","report_ref":"`+report.Id.String()+`","action_url":"/reports/`+job.Id.String()+`"}`,
		string(delivery.sent[0].notif.Metadata))
}

func TestInboxOperationsAreScopedToUser(t *testing.T) {
	db := newMemoryDB()
	svc := NewNotificationService(&fakeNotifications{db: db}, nil, nil, nil, logger.NewNopLogger())
	ctx := context.Background()

	svc.ReportFailed(ctx, &entity.ReportJob{Id: uuid.New(), Type: "FINANCIAL", RequesterId: "u-a"}, "boom")
	svc.ReportFailed(ctx, &entity.ReportJob{Id: uuid.New(), Type: "FINANCIAL", RequesterId: "u-b"}, "boom")

	items, total, err := svc.GetNotifications(ctx, "u-a", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	err = svc.MarkAsRead(ctx, "u-b", items[0].ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, svc.MarkAsRead(ctx, "u-a", items[0].ID))
	unread, err := svc.GetUnreadCount(ctx, "u-a")
	require.NoError(t, err)
	assert.Zero(t, unread)

	updated, err := svc.MarkAllAsRead(ctx, "u-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}
