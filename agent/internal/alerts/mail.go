package alerts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// TypeEmail is the type key of the mail alerter.
const TypeEmail = "email"

// MailConfig holds SMTP settings. Password is resolved by the caller.
type MailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// defaultMailTimeout bounds one SMTP conversation when ctx has no earlier deadline.
const defaultMailTimeout = 30 * time.Second

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mail sends incidents as plain-text e-mail to Subscription.Target.
type Mail struct {
	cfg     MailConfig
	timeout time.Duration
	send    sendMailFunc
}

// NewMail returns a mail alerter. It is unavailable until Host and From are set.
func NewMail(cfg MailConfig) *Mail {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	m := &Mail{cfg: cfg, timeout: defaultMailTimeout}
	m.send = m.sendMail
	return m
}

func (m *Mail) AlerterType() string { return TypeEmail }
func (m *Mail) IsAvailable() bool   { return m.cfg.Host != "" && m.cfg.From != "" }
func (m *Mail) TargetLabel() string { return "e-mail address" }

// Alert mails inc to the comma separated addresses in sub.Target.
func (m *Mail) Alert(ctx context.Context, inc types.Incident, sub types.Subscription) error {
	var to []string
	for _, addr := range strings.Split(sub.Target, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return fmt.Errorf("email: subscription %q has no recipient", sub.ID)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	msg := m.message(inc, to)

	if err := m.send(ctx, addr, auth, m.cfg.From, to, msg); err != nil {
		return fmt.Errorf("email: send via %s: %w", addr, err)
	}
	return nil
}

// sendMail runs one SMTP conversation on a connection whose every read and
// write is bounded by ctx and m.timeout. The connection is closed as soon as
// ctx is done, so a stalled server cannot hold the call.
func (m *Mail) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) (err error) {
	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline) //nolint:errcheck
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	defer func() {
		if err == nil {
			return
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			err = context.DeadlineExceeded
		}
	}()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (m *Mail) message(inc types.Incident, to []string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s %s\r\n", severityLabel(inc.NewStatus), inc.Summary())
	fmt.Fprintf(&b, "Date: %s\r\n", inc.Time.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "%s\r\n\r\n", inc.Summary())
	if inc.Description != "" {
		fmt.Fprintf(&b, "%s\r\n\r\n", inc.Description)
	}
	fmt.Fprintf(&b, "Application:  %s\r\n", inc.Application)
	fmt.Fprintf(&b, "Check:        %s (%s)\r\n", inc.CheckName, inc.CheckID)
	fmt.Fprintf(&b, "Status:       %s -> %s\r\n", inc.OldStatus, inc.NewStatus)
	fmt.Fprintf(&b, "Failing since %s (%s)\r\n",
		inc.FirstFailureAt.Format(time.RFC3339), humanize.RelTime(inc.FirstFailureAt, inc.Time, "earlier", "later"))
	if inc.ResolvedAt != nil {
		fmt.Fprintf(&b, "Resolved at  %s\r\n", inc.ResolvedAt.Format(time.RFC3339))
	}
	for _, r := range inc.Results {
		fmt.Fprintf(&b, "  %-40s %-8s %g\r\n", r.Metric, r.Status, r.Value)
	}
	return []byte(b.String())
}
