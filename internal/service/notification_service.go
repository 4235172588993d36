package service

import (
	"context"
	"fmt"
	"net/mail"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/mailer"
)

// NotificationService sends account mails. Delivery failures are logged and
// counted but never surface to the caller.
type NotificationService struct {
	mailer  mailer.Mailer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs a notification service.
func NewNotificationService(m mailer.Mailer, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{mailer: m, metrics: metrics, logger: logger}
}

// RegistrationReceived confirms a signup is awaiting review.
func (s *NotificationService) RegistrationReceived(ctx context.Context, user *models.User) {
	s.send(ctx, user, "Registration received",
		fmt.Sprintf("Hello %s,\n\nWe received your registration as %s. An administrator will review it shortly.", user.FullName, roleLabel(user.Role)))
}

// RegistrationReviewed tells the applicant the outcome of the review.
func (s *NotificationService) RegistrationReviewed(ctx context.Context, user *models.User, status models.RegistrationStatus, note *string) {
	var body string
	switch status {
	case models.RegistrationApproved:
		body = fmt.Sprintf("Hello %s,\n\nYour registration has been approved. You can now sign in.", user.FullName)
	default:
		body = fmt.Sprintf("Hello %s,\n\nYour registration has been rejected.", user.FullName)
	}
	if note != nil && *note != "" {
		body += "\n\nNote from the reviewer: " + *note
	}
	s.send(ctx, user, "Registration "+lowerStatus(status), body)
}

// PasswordChanged warns the account owner that the password was changed.
func (s *NotificationService) PasswordChanged(ctx context.Context, user *models.User) {
	s.send(ctx, user, "Your password was changed",
		fmt.Sprintf("Hello %s,\n\nThe password of your account was changed and all sessions were signed out. If this was not you, contact the school administrator.", user.FullName))
}

func (s *NotificationService) send(ctx context.Context, user *models.User, subject, text string) {
	if s == nil || s.mailer == nil || user == nil {
		return
	}
	msg := mailer.Message{
		To:      []mail.Address{{Name: user.FullName, Address: user.Email}},
		Subject: subject,
		Text:    text,
	}
	err := s.mailer.Send(ctx, msg)
	s.metrics.RecordMail(err == nil)
	if err != nil {
		s.logger.Warn("failed to send notification",
			zap.String("user_id", user.ID),
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleTeacher:
		return "teacher"
	case models.RoleStudent:
		return "student"
	case models.RoleAdmin:
		return "administrator"
	case models.RoleSuperAdmin:
		return "super administrator"
	}
	return "user"
}

func lowerStatus(status models.RegistrationStatus) string {
	switch status {
	case models.RegistrationApproved:
		return "approved"
	case models.RegistrationRejected:
		return "rejected"
	}
	return "pending"
}
