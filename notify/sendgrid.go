package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mbolis/workation/log"
)

type SendGridConfig struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

// SendGridMailer talks to the SendGrid v3 mail-send API.
type SendGridMailer struct {
	cfg        SendGridConfig
	httpClient *http.Client
}

func NewSendGridMailer(cfg SendGridConfig) (*SendGridMailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid: missing API key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("sendgrid: missing sender address")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &SendGridMailer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To  []sgAddress `json:"to"`
	Bcc []sgAddress `json:"bcc,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMailSend struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// HTTPError is a non-2xx answer of the provider.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Message)
}

// Rejected reports whether the provider refused the message itself
// (as opposed to being unavailable).
func (e *HTTPError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipient
	}
	p := sgPersonalization{}
	for _, to := range msg.To {
		p.To = append(p.To, sgAddress{Email: to})
	}
	for _, bcc := range msg.BCC {
		if !containsFold(msg.To, bcc) {
			p.Bcc = append(p.Bcc, sgAddress{Email: bcc})
		}
	}

	wire := sgMailSend{
		Personalizations: []sgPersonalization{p},
		From:             sgAddress{Email: m.cfg.FromEmail, Name: m.cfg.FromName},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/html", Value: msg.HTML}},
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		id, err := m.sendOnce(ctx, body)
		if err == nil {
			return id, nil
		}
		var he *HTTPError
		if (errors.As(err, &he) && he.Rejected()) || attempt >= m.cfg.MaxRetries {
			return "", err
		}
		log.Warnf("notify.sendgrid: retrying in %s (attempt %d): %s", backoff, attempt+1, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}
}

func (m *SendGridMailer) sendOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return strings.TrimSpace(resp.Header.Get("X-Message-Id")), nil
}

func errorMessage(raw []byte) string {
	var parsed struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &parsed) == nil && len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
		return parsed.Errors[0].Message
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "<empty body>"
	}
	return msg
}

func containsFold(list []string, s string) bool {
	for _, e := range list {
		if strings.EqualFold(e, s) {
			return true
		}
	}
	return false
}
