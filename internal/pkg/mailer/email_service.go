package mailer

import (
	"fmt"
	"html"

	"church-portal-be/internal/pkg/logger"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendReportReady(toEmail, reportType, jobID string) error
	SendReportFailed(toEmail, reportType, jobID, reason string) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
	logger      logger.ILogger
}

func NewEmailService(host string, port int, username, password, senderName string, log logger.ILogger) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: username,
		senderName:  senderName,
		logger:      log,
	}
}

func (s *emailService) SendReportReady(toEmail, reportType, jobID string) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Your %s report is ready</h2>
			<p>The report you requested has been generated and is available in the portal.</p>
			<p style="color: #888;">Reference: %s</p>
		</div>
	`, html.EscapeString(reportType), html.EscapeString(jobID))

	return s.send(toEmail, "Your report is ready", body)
}

func (s *emailService) SendReportFailed(toEmail, reportType, jobID, reason string) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Your %s report could not be generated</h2>
			<p>%s</p>
			<p>Please request the report again from the portal.</p>
			<p style="color: #888;">Reference: %s</p>
		</div>
	`, html.EscapeString(reportType), html.EscapeString(reason), html.EscapeString(jobID))

	return s.send(toEmail, "Report generation failed", body)
}

func (s *emailService) send(toEmail, subject, body string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("Mailer", "Failed to send email", map[string]interface{}{
			"to":      toEmail,
			"subject": subject,
			"error":   err,
		})
		return err
	}

	s.logger.Info("Mailer", "Email sent", map[string]interface{}{"to": toEmail, "subject": subject})
	return nil
}
