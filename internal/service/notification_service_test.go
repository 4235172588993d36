package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/mailer"
)

type recordingMailer struct {
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestNotificationServiceRegistrationReviewed(t *testing.T) {
	m := &recordingMailer{}
	metrics := NewMetricsService()
	svc := NewNotificationService(m, metrics, nil)
	note := "see you monday"

	svc.RegistrationReviewed(context.Background(), &models.User{ID: "u1", Email: "ana@school.id", FullName: "Ana"}, models.RegistrationApproved, &note)

	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	assert.Equal(t, "Registration approved", msg.Subject)
	assert.Equal(t, "ana@school.id", msg.To[0].Address)
	assert.Contains(t, msg.Text, "approved")
	assert.Contains(t, msg.Text, note)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mailsSent.WithLabelValues("sent")))
}

func TestNotificationServiceSwallowsFailures(t *testing.T) {
	m := &recordingMailer{err: errors.New("smtp down")}
	metrics := NewMetricsService()
	svc := NewNotificationService(m, metrics, nil)

	svc.RegistrationReceived(context.Background(), &models.User{Email: "b@school.id", FullName: "Budi", Role: models.RoleTeacher})

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].Text, "as teacher")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mailsSent.WithLabelValues("failed")))
}

func TestNotificationServiceNilSafe(t *testing.T) {
	var svc *NotificationService
	assert.NotPanics(t, func() {
		svc.PasswordChanged(context.Background(), &models.User{Email: "x@school.id"})
	})
	assert.NotPanics(t, func() {
		NewNotificationService(nil, nil, nil).PasswordChanged(context.Background(), &models.User{Email: "x@school.id"})
	})
}
