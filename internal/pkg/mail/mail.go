// Package mail sends the owner's weekly recap email. Delivery goes over
// SMTP unless a Resend key is configured, in which case the Resend HTTP
// API takes over.
package mail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// Config holds mail provider settings (matches FullConfig.MailOptions).
type Config struct {
	Enable    bool
	Host      string
	Port      int
	User      string
	Pass      string
	From      string
	ResendKey string
}

// Message is a single email to send.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender sends emails via SMTP or Resend.
type Sender struct {
	cfg       Config
	resendURL string
}

func New(cfg Config) *Sender {
	return &Sender{cfg: cfg, resendURL: resendEndpoint}
}

// Send dispatches an email. A disabled config is a silent no-op so
// callers never need to gate on it.
func (s *Sender) Send(msg Message) error {
	if !s.cfg.Enable {
		return nil
	}
	if s.cfg.ResendKey != "" {
		return s.sendResend(msg)
	}
	return s.sendSMTP(msg)
}

func (s *Sender) sendSMTP(msg Message) error {
	host := s.cfg.Host
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("From: %s\r\n", from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.HTML)

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, host)
	return smtp.SendMail(addr, auth, from, msg.To, body.Bytes())
}

func (s *Sender) sendResend(msg Message) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"from":    from,
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
	})

	req, err := http.NewRequest(http.MethodPost, s.resendURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
	}).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
