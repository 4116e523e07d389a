package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/mikey/eposter/internal/config"
	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/utils"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 30 * time.Second
	// maxListedFailures bounds the failure table in one mail
	maxListedFailures = 50
	maxErrorBytes     = 300
)

// SMTPNotifier mails a sync summary to operators
type SMTPNotifier struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSMTPNotifier creates a notifier that relays through cfg.Address
func NewSMTPNotifier(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Address == "" {
		return nil, errors.New("notify: smtp address is empty")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: smtp sender is empty")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("notify: no smtp recipients configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger.Named("notify"),
		now:    time.Now,
	}, nil
}

// NotifySync sends one mail describing report and its failures
func (n *SMTPNotifier) NotifySync(ctx context.Context, report *core.SyncReport, failures []core.DownloadFailure) error {
	msg := n.buildMessage(report, failures)
	if err := n.send(ctx, msg); err != nil {
		return err
	}

	n.logger.Info("Sent sync notification",
		zap.String("run_id", report.RunID),
		zap.Strings("to", n.cfg.To),
		zap.Int("failed", report.Failed))
	return nil
}

// Subject returns the mail subject for report
func (n *SMTPNotifier) Subject(report *core.SyncReport) string {
	prefix := strings.TrimSpace(n.cfg.SubjectPrefix)
	device := report.DeviceID
	if device == "" {
		device = "?"
	}

	var subject string
	if report.Err != "" {
		subject = fmt.Sprintf("device %s: sync failed", device)
	} else {
		subject = fmt.Sprintf("device %s: %d poster(s) failed", device, report.Failed)
	}
	if prefix != "" {
		subject = prefix + " " + subject
	}
	return subject
}

func (n *SMTPNotifier) buildMessage(report *core.SyncReport, failures []core.DownloadFailure) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", n.Subject(report))
	fmt.Fprintf(&buf, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "Run:        %s\r\n", report.RunID)
	fmt.Fprintf(&buf, "Device:     %s\r\n", report.DeviceID)
	fmt.Fprintf(&buf, "Source:     %s\r\n", report.Source)
	fmt.Fprintf(&buf, "Started:    %s\r\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Finished:   %s\r\n", report.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Records:    %d\r\n", report.Records)
	fmt.Fprintf(&buf, "Cached:     %d\r\n", report.Entries)
	fmt.Fprintf(&buf, "Downloaded: %d\r\n", report.Downloaded)
	fmt.Fprintf(&buf, "Deleted:    %d\r\n", report.Deleted)
	fmt.Fprintf(&buf, "Skipped:    %d\r\n", report.Skipped)
	fmt.Fprintf(&buf, "Failed:     %d\r\n", report.Failed)
	if report.Err != "" {
		fmt.Fprintf(&buf, "\r\nError: %s\r\n", utils.ProcessMessage(report.Err, maxErrorBytes))
	}

	if len(failures) > 0 {
		buf.WriteString("\r\nFailed posters:\r\n")
		for i, f := range failures {
			if i == maxListedFailures {
				fmt.Fprintf(&buf, "  ... and %d more\r\n", len(failures)-maxListedFailures)
				break
			}
			line := fmt.Sprintf("%s [%s] %s", f.ID, f.Reason, f.SourceURL)
			if f.Err != nil {
				line += ": " + f.Err.Error()
			}
			fmt.Fprintf(&buf, "  %s\r\n", utils.ProcessMessage(line, maxErrorBytes))
		}
	}

	return buf.Bytes()
}

func (n *SMTPNotifier) send(ctx context.Context, msg []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	deadline := time.Now().Add(n.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		host, _, _ := net.SplitHostPort(n.cfg.Address)
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if n.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", n.cfg.Username, n.cfg.Password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(n.cfg.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range n.cfg.To {
		if err := c.Rcpt(recipient, nil); err != nil {
			n.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		n.logger.Debug("QUIT failed", zap.Error(err))
	}
	return nil
}
