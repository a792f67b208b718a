package mailer

import (
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool
}

// Summary is the content of a single digest email.
type Summary struct {
	ChannelTitle string
	VideoTitle   string
	VideoURL     string
	Body         string
}

// Mailer delivers summary emails over SMTP.
type Mailer struct {
	config Config
	send   func(m *gomail.Message) error
}

func NewMailer(config Config) *Mailer {
	mailer := &Mailer{config: config}
	mailer.send = func(m *gomail.Message) error {
		dialer := gomail.NewDialer(config.Host, config.Port, config.User, config.Password)
		// Port 465 expects implicit TLS; 587 with UseTLS upgrades via STARTTLS,
		// which gomail negotiates on its own.
		dialer.SSL = config.Port == 465
		return dialer.DialAndSend(m)
	}
	return mailer
}

// SendSummary sends one summary to recipient. The SMTP settings are checked
// here rather than at startup so the rest of the pipeline can run without a
// mail server configured.
func (m *Mailer) SendSummary(recipient string, summary Summary) error {
	if m.config.Host == "" || m.config.User == "" {
		return fmt.Errorf("SMTP is not configured")
	}
	if recipient == "" {
		return fmt.Errorf("recipient is empty")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.User)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", buildSubject(summary))
	msg.SetBody("text/plain", buildPlainBody(summary))
	msg.AddAlternative("text/html", buildHTMLBody(summary))

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func buildSubject(summary Summary) string {
	return fmt.Sprintf("[YouTube 요약] %s - %s", summary.ChannelTitle, summary.VideoTitle)
}

func buildPlainBody(summary Summary) string {
	var b strings.Builder
	b.WriteString(summary.VideoTitle)
	b.WriteString("\n")
	b.WriteString(summary.VideoURL)
	b.WriteString("\n\n")
	b.WriteString(summary.Body)
	return b.String()
}

func buildHTMLBody(summary Summary) string {
	return fmt.Sprintf(`<html><body style="font-family: sans-serif; max-width: 720px; margin: 0 auto;">
<h2 style="margin-bottom: 4px;">%s</h2>
<p style="margin-top: 0;"><a href="%s">%s</a></p>
<div style="white-space: pre-wrap; line-height: 1.6;">%s</div>
</body></html>`,
		html.EscapeString(summary.VideoTitle),
		html.EscapeString(summary.VideoURL),
		html.EscapeString(summary.VideoURL),
		html.EscapeString(summary.Body))
}
