package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/mailtmpl/internal/model"
)

var ErrNotConfigured = errors.New("mailer: no sender address configured")

type Config struct {
	Host        string
	Port        int
	User        string
	Pass        string
	FromName    string
	FromAddress string
}

// NewConfigFromSettings builds a Config using the transactional sender as
// the default From.
func NewConfigFromSettings(s *model.AppSettings) *Config {
	if s == nil {
		return &Config{}
	}
	snd := s.SenderFor(model.FromTransactional)
	return &Config{
		Host:        s.SMTPHost,
		Port:        s.SMTPPort,
		User:        s.SMTPUser,
		Pass:        s.SMTPPass,
		FromName:    snd.Name,
		FromAddress: snd.Address,
	}
}

// Message is one outgoing mail. From overrides the configured sender when
// set. Either HTML or Text may be empty; with both the body is sent as
// multipart/alternative.
type Message struct {
	From    *mail.Address
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Mailer sends mail over SMTP. Without a host it only logs what it would
// have sent.
type Mailer struct {
	mu     sync.RWMutex
	cfg    Config
	sendFn func(Message) error
	now    func() time.Time
}

func New(cfg *Config) *Mailer {
	m := &Mailer{now: time.Now}
	if cfg != nil {
		m.cfg = *cfg
	}
	return m
}

// Reconfigure swaps the SMTP settings for subsequent sends.
func (m *Mailer) Reconfigure(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg == nil {
		m.cfg = Config{}
		return
	}
	m.cfg = *cfg
}

func (m *Mailer) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Send delivers msg immediately.
func (m *Mailer) Send(msg Message) error {
	if m.sendFn != nil {
		return m.sendFn(msg)
	}

	cfg := m.config()
	from := m.fromAddress(cfg, msg)
	if from == nil {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return errors.New("mailer: message has no recipients")
	}

	if cfg.Host == "" {
		slog.Info("mailer: no SMTP host configured, logging message instead",
			"from", from.Address, "to", msg.To, "subject", msg.Subject)
		return nil
	}

	body, err := m.formatMessage(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if err := smtp.SendMail(addr, auth, from.Address, msg.To, body); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", strings.Join(msg.To, ", "), err)
	}
	return nil
}

func (m *Mailer) fromAddress(cfg Config, msg Message) *mail.Address {
	if msg.From != nil && msg.From.Address != "" {
		return msg.From
	}
	if cfg.FromAddress == "" {
		return nil
	}
	return &mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
}

// formatMessage renders msg as an RFC 5322 message.
func (m *Mailer) formatMessage(msg Message) ([]byte, error) {
	from := m.fromAddress(m.config(), msg)
	if from == nil {
		return nil, ErrNotConfigured
	}

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", from.String())
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")

	switch {
	case msg.HTML != "" && msg.Text != "":
		mw := multipart.NewWriter(&buf)
		header("Content-Type", `multipart/alternative; boundary="`+mw.Boundary()+`"`)
		buf.WriteString("\r\n")
		if err := writePart(mw, "text/plain", msg.Text); err != nil {
			return nil, err
		}
		if err := writePart(mw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	case msg.HTML != "":
		if err := writeSingle(&buf, header, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	default:
		if err := writeSingle(&buf, header, "text/plain", msg.Text); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeSingle(buf *bytes.Buffer, header func(k, v string), contentType, body string) error {
	header("Content-Type", contentType+"; charset=UTF-8")
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+"; charset=UTF-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}
