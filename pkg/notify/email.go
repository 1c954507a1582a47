package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/logging"
)

// Mailer sends a single HTML message
type Mailer interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender is a Mailer speaking plain SMTP
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender creates an SMTP mailer. Authentication is used only when a
// user and password are configured.
func NewSMTPSender(cfg config.NotificationConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPUser != "" && cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPSender{
		addr: cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
		from: cfg.From,
		auth: auth,
	}
}

// SendMail delivers one message
func (s *SMTPSender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + sanitizeHeader(s.from),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}, "\r\n")

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{sanitizeHeader(to)}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// EmailDispatcher renders notifications as HTML email. Deliveries are
// paced by a token bucket so a burst of alerts cannot flood the relay.
type EmailDispatcher struct {
	mailer  Mailer
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewEmailDispatcher creates a dispatcher sending through mailer at most
// perSecond messages per second
func NewEmailDispatcher(mailer Mailer, perSecond float64, logger logging.Logger) *EmailDispatcher {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &EmailDispatcher{
		mailer:  mailer,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// Dispatch renders and sends one notification
func (d *EmailDispatcher) Dispatch(ctx context.Context, address string, kind Kind, payload Payload) error {
	if address == "" {
		return fmt.Errorf("notification address missing")
	}
	subject, body, err := Render(kind, payload)
	if err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if err := d.mailer.SendMail(ctx, address, subject, body); err != nil {
		return err
	}
	d.logger.WithFields(logging.Fields{
		"kind":    kind,
		"user_id": payload.UserID,
		"alerts":  len(payload.Alerts),
	}).Debug("Notification sent")
	return nil
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}

var alertTemplate = template.Must(template.New("alert").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif">
{{range .Alerts}}
<h2>[{{.Severity}}] {{.Title}}</h2>
<p>{{.Message}}</p>
{{if .Details}}<table>{{range $k, $v := .Details}}<tr><td><b>{{$k}}</b></td><td>{{$v}}</td></tr>{{end}}</table>{{end}}
<p style="color:#666">Raised {{date .CreatedAt}}</p>
{{end}}
</body></html>`))

var digestTemplate = template.Must(template.New("digest").Funcs(funcs).Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif">
<h2>SEO alerts {{date .PeriodStart}} to {{date .PeriodEnd}}</h2>
{{if .Alerts}}
<table cellpadding="4">
<tr><th>Severity</th><th>Alert</th><th>Status</th><th>Raised</th></tr>
{{range .Alerts}}<tr><td>{{.Severity}}</td><td>{{.Title}}</td><td>{{.Status}}</td><td>{{date .CreatedAt}}</td></tr>
{{end}}</table>
{{else}}
<p>No alerts were raised in this period.</p>
{{end}}
</body></html>`))

// Render produces the subject and HTML body of a notification
func Render(kind Kind, p Payload) (subject, body string, err error) {
	var tmpl *template.Template
	switch kind {
	case KindImmediate:
		tmpl = alertTemplate
		if len(p.Alerts) == 1 {
			subject = fmt.Sprintf("[%s] %s", strings.ToUpper(string(p.Alerts[0].Severity)), p.Alerts[0].Title)
		} else {
			subject = fmt.Sprintf("%d new SEO alerts", len(p.Alerts))
		}
	case KindDailyDigest:
		tmpl = digestTemplate
		subject = fmt.Sprintf("Daily SEO digest: %d alert(s)", len(p.Alerts))
	case KindWeeklyDigest:
		tmpl = digestTemplate
		subject = fmt.Sprintf("Weekly SEO digest: %d alert(s)", len(p.Alerts))
	default:
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", kind, err)
	}
	return subject, buf.String(), nil
}
