package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"dailyjokes/internal/config"
	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"

	"github.com/sethvargo/go-retry"
)

// SendFunc matches smtp.SendMail, injectable for tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg     config.SMTPConfig
	send    SendFunc
	backoff func() retry.Backoff
}

type Option func(*Mailer)

func WithSendFunc(send SendFunc) Option {
	return func(m *Mailer) {
		m.send = send
	}
}

// WithBackoff replaces the retry schedule. The factory is invoked per
// delivery because backoffs are stateful.
func WithBackoff(backoff func() retry.Backoff) Option {
	return func(m *Mailer) {
		m.backoff = backoff
	}
}

func New(cfg config.SMTPConfig, opts ...Option) *Mailer {
	m := &Mailer{
		cfg:  cfg,
		send: smtp.SendMail,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(time.Second))
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SendJokes delivers one email bundling all of a subscriber's jokes for the
// tick, in the order the dispatcher picked them.
func (m *Mailer) SendJokes(ctx context.Context, subscriber models.Subscriber, jokes []models.Joke) error {
	if len(jokes) == 0 {
		return nil
	}

	msg := buildMessage(m.cfg.From, subscriber.Email,
		"Your Daily Dose of Laughter!", jokesBody(jokes))
	return m.deliver(ctx, subscriber.Email, msg)
}

// SendWelcome greets a freshly created subscriber.
func (m *Mailer) SendWelcome(ctx context.Context, email string) error {
	body := "<p>Why did we sign you up? Because laughter is the best medicine!</p>" +
		"<p>Your first joke arrives at your chosen delivery time.</p>"
	msg := buildMessage(m.cfg.From, email, "Welcome to Daily Jokes!", body)
	return m.deliver(ctx, email, msg)
}

func (m *Mailer) deliver(ctx context.Context, to string, msg []byte) error {
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	err := retry.Do(ctx, m.backoff(), func(ctx context.Context) error {
		if err := m.send(m.cfg.Addr(), auth, m.cfg.From, []string{to}, msg); err != nil {
			logger.Warn("mail send attempt failed, will retry",
				logger.Err(err),
				logger.String("to", to),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	logger.Debug("mail sent", logger.String("to", to))
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("<html><body>")
	b.WriteString(htmlBody)
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func jokesBody(jokes []models.Joke) string {
	var b strings.Builder
	b.WriteString("<h2>Your jokes for today</h2>")
	for _, joke := range jokes {
		fmt.Fprintf(&b, "<p>%s</p>", htmlEscape(joke.Content))
	}
	return b.String()
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
