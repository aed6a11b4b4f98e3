package notify

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dev-tams/deployprune/internal/config"
)

type emailNotifier struct {
	addr     string
	host     string
	from     *mail.Address
	to       []*mail.Address
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(details config.NotificationDetails) (Notifier, error) {
	host := strings.TrimSpace(details.SMTPHost)
	if host == "" {
		return nil, fmt.Errorf("config.smtp_host is required")
	}
	if details.SMTPPort <= 0 || details.SMTPPort > 65535 {
		return nil, fmt.Errorf("config.smtp_port %d is out of range", details.SMTPPort)
	}
	from, err := mail.ParseAddress(strings.TrimSpace(details.From))
	if err != nil {
		return nil, fmt.Errorf("config.from: %w", err)
	}
	to, err := parseRecipients(details.To)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(details.Username)
	password := strings.TrimSpace(details.Password)
	if (username == "") != (password == "") {
		return nil, fmt.Errorf("config.username and config.password must be set together")
	}

	e := &emailNotifier{
		addr:     net.JoinHostPort(host, strconv.Itoa(details.SMTPPort)),
		host:     host,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		e.auth = smtp.PlainAuth("", username, password, host)
	}
	return e, nil
}

func (e *emailNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rcpt := make([]string, len(e.to))
	for i, a := range e.to {
		rcpt[i] = a.Address
	}
	if err := e.sendMail(e.addr, e.auth, e.from.Address, rcpt, e.message(event, time.Now())); err != nil {
		return fmt.Errorf("mail %s event for bucket %s via %s: %w", event.Status, event.Bucket, e.addr, err)
	}
	return nil
}

func (e *emailNotifier) message(event Event, now time.Time) []byte {
	to := make([]string, len(e.to))
	for i, a := range e.to {
		to[i] = a.String()
	}

	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }
	header("From", e.from.String())
	header("To", strings.Join(to, ", "))
	header("Subject", emailSubject(event))
	header("Date", now.Format(time.RFC1123Z))
	if event.RunID != "" {
		header(HeaderRun, event.RunID)
	}
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(buildEmailBody(event), "\n", "\r\n"))
	return []byte(b.String())
}

func emailSubject(event Event) string {
	return fmt.Sprintf("[deployprune] %s %s: %d of %d deployments deleted",
		event.Bucket, event.Status, len(event.Deleted), event.Discovered)
}

func buildEmailBody(event Event) string {
	lines := []string{
		"Deployment cleanup",
		"",
		"run: " + event.RunID,
		"bucket: " + event.Bucket,
		"status: " + event.Status,
		fmt.Sprintf("discovered: %d", event.Discovered),
		fmt.Sprintf("retained: %d", event.Retained),
		fmt.Sprintf("objects deleted: %d", event.Objects),
		"duration: " + event.Duration,
	}
	if len(event.Deleted) > 0 {
		lines = append(lines, "", "deleted deployments:")
		for _, p := range event.Deleted {
			lines = append(lines, "  "+p)
		}
	}
	if event.FailedPrefix != "" {
		lines = append(lines, "", "failed deployment (may be partially deleted): "+event.FailedPrefix)
	}
	if event.Error != "" {
		lines = append(lines, "error: "+event.Error)
	}
	return strings.Join(lines, "\n")
}

// parseRecipients accepts a comma separated list and tolerates empty entries.
func parseRecipients(raw string) ([]*mail.Address, error) {
	var out []*mail.Address
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		a, err := mail.ParseAddress(part)
		if err != nil {
			return nil, fmt.Errorf("config.to %q: %w", part, err)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config.to must include at least one recipient")
	}
	return out, nil
}
