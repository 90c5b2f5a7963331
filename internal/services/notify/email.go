package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"CoinTrend/internal/domain/models"
	"CoinTrend/pkg/queue"
)

// EmailJobType is the queue message type of one outgoing alert mail.
const EmailJobType = "notify.email"

// EmailDelivery is the queued payload.
type EmailDelivery struct {
	UserID  string `json:"userId"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	EventID string `json:"eventId"`
}

// EmailNotifier enqueues one delivery per subscriber. EmailJob sends them.
type EmailNotifier struct {
	queue    queue.Publisher
	audience *Audience
}

func NewEmailNotifier(q queue.Publisher, audience *Audience) *EmailNotifier {
	return &EmailNotifier{queue: q, audience: audience}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Notify(ctx context.Context, e *models.SymbolEvent) error {
	users, err := n.audience.Resolve(ctx, n.Name(), e)
	if err != nil {
		return err
	}
	msg := NewMessage(e)

	var errs []error
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		d := EmailDelivery{
			UserID:  u.ID,
			To:      u.Email,
			Subject: msg.Title(),
			Body:    msg.Greeting(u.Username),
			EventID: e.ID,
		}
		if err := n.queue.Enqueue(ctx, EmailJobType, d); err != nil {
			errs = append(errs, fmt.Errorf("enqueue mail for %s: %w", u.ID, err))
			continue
		}
		n.audience.Delivered(ctx, u)
	}
	return errors.Join(errs...)
}

// Mailer sends one plain text mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailJob is the queue job that performs the SMTP send. Failures are retried by the queue.
type EmailJob struct {
	mailer Mailer
}

func NewEmailJob(m Mailer) *EmailJob { return &EmailJob{mailer: m} }

func (j *EmailJob) Name() string { return "email_delivery" }
func (j *EmailJob) Type() string { return EmailJobType }

func (j *EmailJob) Handle(ctx context.Context, payload json.RawMessage) error {
	d, err := queue.Decode[EmailDelivery](payload)
	if err != nil {
		return err
	}
	return j.mailer.Send(ctx, d.To, d.Subject, d.Body)
}

// SMTPMailer sends through a plain SMTP relay with PLAIN auth.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	if err := smtp.SendMail(addr, auth, m.From, []string{to}, composeMail(m.From, to, subject, body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func composeMail(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
