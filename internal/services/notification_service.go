// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lapakwarga/lapakwarga-backend/internal/config"
	"github.com/lapakwarga/lapakwarga-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// Authentication notifications
func (s *NotificationService) SendWelcomeEmail(user *models.User) error {
	template := s.getEmailTemplate("welcome")

	data := map[string]interface{}{
		"Username":     user.Username,
		"Neighborhood": user.Neighborhood,
		"PlatformName": "LapakWarga",
	}

	subject := "Selamat datang di LapakWarga"
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// Group buy notifications

// SendGroupBuyResolved notifies the organizer and every held participant
// after a group buy reaches a terminal state.
func (s *NotificationService) SendGroupBuyResolved(groupBuy *models.GroupBuy) error {
	var organizer models.User
	if err := s.db.First(&organizer, "id = ?", groupBuy.OrganizerID).Error; err != nil {
		return fmt.Errorf("organizer not found: %w", err)
	}

	var commitments []models.Commitment
	if err := s.db.Preload("Participant").
		Where("group_buy_id = ? AND state = ?", groupBuy.ID, models.CommitmentStateHeld).
		Find(&commitments).Error; err != nil {
		return fmt.Errorf("failed to load commitments: %w", err)
	}

	templateType := "groupbuy_failed"
	subject := "Borongan tidak tercapai - " + groupBuy.Title
	if groupBuy.LifecycleState == models.LifecycleStateSucceeded {
		templateType = "groupbuy_succeeded"
		subject = "Borongan berhasil - " + groupBuy.Title
	} else if groupBuy.LifecycleState == models.LifecycleStateCancelled {
		templateType = "groupbuy_cancelled"
		subject = "Borongan dibatalkan - " + groupBuy.Title
	}

	template := s.getEmailTemplate(templateType)

	for _, commitment := range commitments {
		data := map[string]interface{}{
			"ParticipantName":   commitment.Participant.Username,
			"GroupBuyTitle":     groupBuy.Title,
			"Quantity":          commitment.Quantity,
			"UnitPrice":         groupBuy.UnitPrice,
			"OrganizerName":     organizer.Username,
			"CommittedQuantity": groupBuy.CommittedQuantity,
			"TargetQuantity":    groupBuy.TargetQuantity,
			"GroupBuyURL":       fmt.Sprintf("%s/borongan/%s", s.config.Frontend.BaseURL, groupBuy.ID),
		}

		body, err := s.renderTemplate(template.Body, data)
		if err != nil {
			return fmt.Errorf("failed to render email template: %w", err)
		}

		if err := s.sendEmail(commitment.Participant.Email, subject, body); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"group_buy_id":   groupBuy.ID,
				"participant_id": commitment.ParticipantID,
			}).Warn("Failed to send group buy resolution email")
		}
	}

	// Organizer summary
	data := map[string]interface{}{
		"OrganizerName":     organizer.Username,
		"GroupBuyTitle":     groupBuy.Title,
		"CommittedQuantity": groupBuy.CommittedQuantity,
		"TargetQuantity":    groupBuy.TargetQuantity,
		"ParticipantCount":  len(commitments),
		"GroupBuyURL":       fmt.Sprintf("%s/borongan/%s", s.config.Frontend.BaseURL, groupBuy.ID),
	}

	organizerTemplate := s.getEmailTemplate("groupbuy_organizer_summary")
	body, err := s.renderTemplate(organizerTemplate.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(organizer.Email, subject, body)
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPUsername == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("Email delivery skipped: SMTP not configured")
		return nil
	}

	// Setup authentication
	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	// Compose message
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	// Send email
	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	// In a real implementation, these would be loaded from files or database
	templates := map[string]EmailTemplate{
		"welcome": {
			Subject: "Selamat datang di LapakWarga",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Halo {{.Username}}!</h2>
	<p>Terima kasih telah bergabung dengan LapakWarga di lingkungan {{.Neighborhood}}.</p>
	<p>Salam hangat,<br>Tim {{.PlatformName}}</p>
</body>
</html>`,
		},
		"groupbuy_succeeded": {
			Subject: "Borongan berhasil",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Borongan berhasil!</h2>
	<p>Halo {{.ParticipantName}},</p>
	<p>Borongan "{{.GroupBuyTitle}}" telah mencapai target ({{.CommittedQuantity}}/{{.TargetQuantity}}).</p>
	<p>Pesanan Anda: {{.Quantity}} unit dengan harga {{.UnitPrice}} per unit.</p>
	<p>Silakan hubungi {{.OrganizerName}} untuk pengambilan barang.</p>
	<a href="{{.GroupBuyURL}}">Lihat Detail Borongan</a>
</body>
</html>`,
		},
		"groupbuy_failed": {
			Subject: "Borongan tidak tercapai",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Borongan tidak tercapai</h2>
	<p>Halo {{.ParticipantName}},</p>
	<p>Borongan "{{.GroupBuyTitle}}" berakhir tanpa mencapai target ({{.CommittedQuantity}}/{{.TargetQuantity}}).</p>
	<p>Tidak ada kewajiban pembayaran. Terima kasih sudah berpartisipasi.</p>
	<a href="{{.GroupBuyURL}}">Lihat Detail Borongan</a>
</body>
</html>`,
		},
		"groupbuy_cancelled": {
			Subject: "Borongan dibatalkan",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Borongan dibatalkan</h2>
	<p>Halo {{.ParticipantName}},</p>
	<p>Borongan "{{.GroupBuyTitle}}" dibatalkan oleh {{.OrganizerName}}.</p>
	<p>Tidak ada kewajiban pembayaran.</p>
</body>
</html>`,
		},
		"groupbuy_organizer_summary": {
			Subject: "Ringkasan borongan",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Ringkasan borongan</h2>
	<p>Halo {{.OrganizerName}},</p>
	<p>Borongan "{{.GroupBuyTitle}}" telah selesai dengan {{.CommittedQuantity}}/{{.TargetQuantity}} unit dari {{.ParticipantCount}} peserta.</p>
	<a href="{{.GroupBuyURL}}">Lihat Detail Borongan</a>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
