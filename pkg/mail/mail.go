// Package mail delivers rendered digests over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/agendify/pkg/digest"
)

//go:embed templates/*.html
var templatesFS embed.FS

var digestTmpl = template.Must(template.ParseFS(templatesFS, "templates/digest.html"))

type Settings struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender implements agenda.Mailer.
type Sender struct {
	settings Settings
	send     sendFunc
	now      func() time.Time
}

func NewSender(s Settings) *Sender {
	if s.Port == 0 {
		s.Port = 587
	}
	return &Sender{settings: s, send: smtp.SendMail, now: time.Now}
}

// Send renders p and delivers it to a single recipient.
func (s *Sender) Send(ctx context.Context, to, subject string, p digest.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	html, err := RenderHTML(p)
	if err != nil {
		return err
	}
	msg, err := s.compose(to, subject, RenderText(p), html)
	if err != nil {
		return err
	}
	return s.deliver(to, subject, msg)
}

// SendTest delivers a fixed message so the SMTP settings can be checked
// without rendering a digest.
func (s *Sender) SendTest(ctx context.Context, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.compose(to, testSubject, testText, testHTML)
	if err != nil {
		return err
	}
	return s.deliver(to, testSubject, msg)
}

const (
	testSubject = "Test Email from Agendify"
	testText    = "This is a test email to verify your email configuration.\n"
	testHTML    = "<h1>Test Email</h1><p>This is a test email to verify your email configuration.</p>"
)

func (s *Sender) deliver(to, subject string, msg []byte) error {
	addr := net.JoinHostPort(s.settings.Server, strconv.Itoa(s.settings.Port))
	var auth smtp.Auth
	if s.settings.Username != "" {
		auth = smtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Server)
	}
	if err := s.send(addr, auth, s.settings.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	slog.Debug("mail delivered", "to", to, "subject", subject)
	return nil
}

// RenderHTML renders the digest body.
func RenderHTML(p digest.Payload) (string, error) {
	var b bytes.Buffer
	if err := digestTmpl.Execute(&b, p); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return b.String(), nil
}

// RenderText renders a plain-text alternative of the digest.
func RenderText(p digest.Payload) string {
	var b strings.Builder
	b.WriteString(p.Heading + "\n")
	for _, sec := range []digest.Section{p.Events, p.Tasks} {
		fmt.Fprintf(&b, "\n%s\n", sec.Title)
		if sec.Empty {
			b.WriteString(sec.EmptyText + "\n")
			continue
		}
		for _, it := range sec.Items {
			mark := ""
			switch it.Marker {
			case digest.MarkerDone:
				mark = "[x] "
			case digest.MarkerPending:
				mark = "[ ] "
			}
			fmt.Fprintf(&b, "%s%s - %s\n", mark, it.Time, it.Title)
			if it.Location != "" {
				fmt.Fprintf(&b, "    Location: %s\n", it.Location)
			}
			if it.Priority != "" {
				fmt.Fprintf(&b, "    Priority: %s\n", it.Priority)
			}
		}
	}
	return b.String()
}

func (s *Sender) compose(to, subject, text, html string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, fmt.Errorf("compose mail: %w", err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("compose mail: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("compose mail: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.settings.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
