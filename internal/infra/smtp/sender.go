package smtp

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	netsmtp "net/smtp"
	"strconv"
	"strings"

	"quiz-participation-service/internal/domain"
)

// Config holds the SMTP relay settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	DisplayName string
}

type sendFunc func(addr string, a netsmtp.Auth, from string, to []string, msg []byte) error

// Sender delivers result e-mails over SMTP.
type Sender struct {
	cfg  Config
	send sendFunc
}

func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg, send: netsmtp.SendMail}
}

var resultTemplate = template.Must(template.New("quiz_result").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
    <h2 style="color: #2c3e50;">Quiz Result</h2>
    <p>Hello <strong>{{.Name}}</strong>,</p>
    <p>Thank you for completing the quiz: <strong>{{.QuizTitle}}</strong></p>
    <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
        <h3 style="color: #27ae60; margin-top: 0;">Your Score: {{.Score}} / 10</h3>
        <p><strong>Correct Answers:</strong> {{.Correct}} out of {{.Total}}</p>
    </div>
</body>
</html>
`))

// SendResultEmail renders and sends the result e-mail.
func (s *Sender) SendResultEmail(ctx context.Context, msg domain.ResultEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	err := resultTemplate.Execute(&body, map[string]any{
		"Name":      msg.ParticipantName,
		"QuizTitle": msg.QuizTitle,
		"Score":     msg.Score.StringFixed(2),
		"Correct":   msg.CorrectCount,
		"Total":     msg.TotalQuestions,
	})
	if err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	var auth netsmtp.Auth
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = netsmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	raw := s.buildMessage(msg.To, "Quiz Result: "+msg.QuizTitle, body.String())
	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *Sender) buildMessage(to, subject, body string) string {
	from := s.cfg.From
	if s.cfg.DisplayName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.DisplayName, s.cfg.From)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
