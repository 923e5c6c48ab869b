package services

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"

	"github.com/ispops/backend/internal/config"
	"github.com/ispops/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// OtpNotifier delivers the happy code to the reporting user.
type OtpNotifier interface {
	SendOtp(ctx context.Context, reporter *models.Reporter, complaint *models.Complaint, code string) error
}

const otpSubjectTemplate = `Your happy code for complaint {{.Code}}`

const otpBodyTemplate = `Hello {{.Name}},

Our engineer has visited you for complaint {{.Code}} ({{.Title}}).
Share this happy code with the engineer only once the issue is fixed: {{.Otp}}

Do not share this code before your {{.Type}} service is working again.`

// NotificationRecorder persists delivery attempts. Implemented by repository.NotificationLogRepository.
type NotificationRecorder interface {
	Create(ctx context.Context, log *models.NotificationLog) error
}

type EmailOtpNotifier struct {
	cfg      config.NotificationConfig
	mock     bool
	logger   *logrus.Logger
	recorder NotificationRecorder
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailOtpNotifier sends through SMTP, or only logs a mock-send when mock is set.
// recorder may be nil.
func NewEmailOtpNotifier(cfg config.NotificationConfig, mock bool, recorder NotificationRecorder, logger *logrus.Logger) *EmailOtpNotifier {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &EmailOtpNotifier{cfg: cfg, mock: mock, logger: logger, recorder: recorder, send: smtp.SendMail}
}

func RenderTemplate(tpl string, vars map[string]string) (string, error) {
	t, err := template.New("tpl").Option("missingkey=zero").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, vars)
	return buf.String(), err
}

func (n *EmailOtpNotifier) SendOtp(ctx context.Context, reporter *models.Reporter, complaint *models.Complaint, code string) error {
	vars := map[string]string{
		"Name":  reporter.Name,
		"Code":  complaint.Code(),
		"Title": complaint.Title,
		"Type":  string(complaint.Type),
		"Otp":   code,
	}
	subject, err := RenderTemplate(otpSubjectTemplate, vars)
	if err != nil {
		return err
	}
	body, err := RenderTemplate(otpBodyTemplate, vars)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"module":       "notification",
		"complaint_id": complaint.ID,
		"recipient":    reporter.Email,
	}

	if n.mock {
		n.logger.WithFields(fields).WithField("status", models.NotificationMockSent).Info("otp notification")
		n.record(ctx, complaint, reporter.Email, subject, "mock", nil)
		return nil
	}

	err = n.deliver(reporter, subject, body)
	n.record(ctx, complaint, reporter.Email, subject, "smtp", err)
	if err != nil {
		return err
	}
	n.logger.WithFields(fields).WithField("status", models.NotificationSent).Info("otp notification")
	return nil
}

func (n *EmailOtpNotifier) deliver(reporter *models.Reporter, subject, body string) error {
	if reporter.Email == "" {
		return fmt.Errorf("reporter %s has no email address", reporter.ID)
	}

	addr := fmt.Sprintf("%s:%s", n.cfg.SMTPHost, n.cfg.SMTPPort)
	auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s",
		n.cfg.From, reporter.Email, subject, body))

	return n.send(addr, auth, n.cfg.From, []string{reporter.Email}, msg)
}

// record failures are logged only; the audit row never blocks delivery.
func (n *EmailOtpNotifier) record(ctx context.Context, complaint *models.Complaint, recipient, subject, provider string, sendErr error) {
	if n.recorder == nil {
		return
	}
	entry := &models.NotificationLog{
		ComplaintID: complaint.ID,
		Channel:     "email",
		Recipient:   recipient,
		Subject:     subject,
		Status:      models.NotificationSent,
		Provider:    provider,
	}
	switch {
	case sendErr != nil:
		entry.Status = models.NotificationFailed
		entry.ErrorMessage = sendErr.Error()
	case provider == "mock":
		entry.Status = models.NotificationMockSent
	}
	if err := n.recorder.Create(ctx, entry); err != nil {
		config.LogError(n.logger, "notification", "record", "failed to store notification log", complaint.ID, err)
	}
}
