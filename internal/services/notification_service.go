// internal/services/notification_service.go
package services

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kucash/kucash-backend/internal/config"
	"github.com/kucash/kucash-backend/internal/models"
)

// NotificationService sends transactional email. Every method is best
// effort; callers fire them on goroutines and never block a request on
// delivery.
type NotificationService struct {
	config *config.Config
}

func NewNotificationService(config *config.Config) *NotificationService {
	return &NotificationService{config: config}
}

// ApplicationSubmitted acknowledges the applicant and alerts the back
// office about a new submission.
func (s *NotificationService) ApplicationSubmitted(app *models.LoanApplication) {
	subject := fmt.Sprintf("Loan application %s received", app.LoanID)
	body := fmt.Sprintf(
		"Dear %s,\n\nYour loan application has been received.\n\n"+
			"Application ID: %s\nLoan Type: %s\nLoan Amount: ₹%d\n\n"+
			"Our team will review your application and contact you shortly.\n\n"+
			"Regards,\n%s",
		app.FirstName, app.LoanID, app.LoanType, app.LoanAmount, s.config.Email.FromName)

	if err := s.sendEmail(app.Email, subject, body); err != nil {
		logrus.WithError(err).WithField("loan_id", app.LoanID).
			Warn("Failed to send submission acknowledgement")
	}

	adminSubject := fmt.Sprintf("New loan application %s", app.LoanID)
	adminBody := fmt.Sprintf(
		"A new application was submitted.\n\nApplication ID: %s\nApplicant: %s %s\n"+
			"Loan Type: %s\nLoan Amount: ₹%d\nSource: %s\n",
		app.LoanID, app.FirstName, app.LastName, app.LoanType, app.LoanAmount, app.Source)

	if err := s.sendEmail(s.config.Email.AdminEmail, adminSubject, adminBody); err != nil {
		logrus.WithError(err).WithField("loan_id", app.LoanID).
			Warn("Failed to send admin submission alert")
	}
}

// ApplicationDecided informs the applicant of an approval or rejection.
func (s *NotificationService) ApplicationDecided(app *models.LoanApplication) {
	verdict := "approved"
	if app.Status == models.ApplicationStatusRejected {
		verdict = "rejected"
	}

	subject := fmt.Sprintf("Loan application %s %s", app.LoanID, verdict)
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\nYour loan application %s has been %s.\n",
		app.FirstName, app.LoanID, verdict)
	if app.DecisionNote != nil && *app.DecisionNote != "" {
		fmt.Fprintf(&b, "\nNote from our team: %s\n", *app.DecisionNote)
	}
	fmt.Fprintf(&b, "\nRegards,\n%s", s.config.Email.FromName)

	if err := s.sendEmail(app.Email, subject, b.String()); err != nil {
		logrus.WithError(err).WithField("loan_id", app.LoanID).
			Warn("Failed to send decision email")
	}
}

// AgentCredentials mails a freshly created agent their referral code.
func (s *NotificationService) AgentCredentials(agent *models.User, tempPassword string) {
	if agent.AgentCode == nil {
		return
	}

	subject := "Your KuCash agent account"
	body := fmt.Sprintf(
		"Dear %s,\n\nYour agent account is ready.\n\n"+
			"Referral code: %s\nLogin email: %s\nTemporary password: %s\n\n"+
			"Please change your password after your first login.\n\n"+
			"Regards,\n%s",
		agent.Name, *agent.AgentCode, agent.Email, tempPassword, s.config.Email.FromName)

	if err := s.sendEmail(agent.Email, subject, body); err != nil {
		logrus.WithError(err).WithField("agent_code", *agent.AgentCode).
			Warn("Failed to send agent credentials email")
	}
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	cfg := s.config.Email
	if cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("SMTP not configured, skipping email")
		return nil
	}

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		cfg.FromName, cfg.FromEmail, to, subject, body)

	auth := smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%s", cfg.SMTPHost, cfg.SMTPPort)

	return smtp.SendMail(addr, auth, cfg.FromEmail, []string{to}, []byte(msg))
}
