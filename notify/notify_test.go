package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mbolis/workation/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConditionalBlock(t *testing.T) {
	tpl := model.EmailTemplate{
		Subject: "Welcome {{name}}",
		Content: "Hi {{name}}{{#if vip}}, VIP perk included{{/if}}.",
	}

	out := Render(tpl, map[string]any{"name": "Ann", "vip": true})
	assert.Equal(t, "Hi Ann, VIP perk included.", out.Content)
	assert.Equal(t, "Welcome Ann", out.Subject)

	out = Render(tpl, map[string]any{"name": "Ann", "vip": false})
	assert.Equal(t, "Hi Ann.", out.Content)

	out = Render(tpl, map[string]any{"name": "Ann"})
	assert.Equal(t, "Hi Ann.", out.Content)
}

func TestRenderValues(t *testing.T) {
	tpl := model.EmailTemplate{Content: "{{a}}|{{b}}|{{c}}|{{d}}|{{e}}|{{missing}}"}
	out := Render(tpl, map[string]any{
		"a": []string{"x", "y"},
		"b": 0,
		"c": nil,
		"d": model.Undefined,
		"e": 2.5,
	})
	assert.Equal(t, "x,y||||2.5|{{missing}}", out.Content)
}

func TestRenderSubstitutesBeforeConditions(t *testing.T) {
	tpl := model.EmailTemplate{Content: "{{#if company}}Company: {{company}}\n{{/if}}end"}
	out := Render(tpl, map[string]any{"company": "ACME"})
	assert.Equal(t, "Company: ACME\nend", out.Content)

	// no HTML escaping
	out = Render(model.EmailTemplate{Content: "{{x}}"}, map[string]any{"x": "<b>hi</b>"})
	assert.Equal(t, "<b>hi</b>", out.Content)
}

func TestRenderDoesNotExpandValues(t *testing.T) {
	tpl := model.EmailTemplate{Content: "Hi {{name}}, ref {{responseId}}"}
	data := map[string]any{"name": "{{responseId}}", "responseId": "R1"}
	for i := 0; i < 100; i++ {
		assert.Equal(t, "Hi {{responseId}}, ref R1", Render(tpl, data).Content)
	}
}

type fakeMailer struct {
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

type fakeContent struct {
	docs map[string]any
	err  error
}

func (c *fakeContent) Get(_ context.Context, name string, dst any) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	doc, ok := c.docs[name]
	if !ok {
		return false, nil
	}
	data, _ := json.Marshal(doc)
	return true, json.Unmarshal(data, dst)
}

func (c *fakeContent) Put(_ context.Context, name string, doc any) error {
	c.docs[name] = doc
	return nil
}

func TestSendConfirmationUsesStoredTemplate(t *testing.T) {
	mailer := &fakeMailer{}
	content := &fakeContent{docs: map[string]any{
		model.DocEmailTemplates: model.EmailTemplates{Confirmation: model.EmailTemplate{
			Subject: "Hello {{name}}",
			Content: "Your code: {{code}}",
		}},
	}}
	s := NewService(mailer, content, "admin@example.com")

	id, err := s.SendConfirmation(context.Background(), "ann@example.com", map[string]any{"name": "Ann", "code": "X1"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, Message{
		To:      []string{"ann@example.com"},
		BCC:     []string{"admin@example.com"},
		Subject: "Hello Ann",
		HTML:    "Your code: X1",
	}, mailer.sent[0])
}

func TestSendConfirmationFallsBack(t *testing.T) {
	mailer := &fakeMailer{}
	s := NewService(mailer, &fakeContent{err: errors.New("db down")}, "")

	_, err := s.SendConfirmation(context.Background(), "ann@example.com", map[string]any{"name": "Ann"})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Thank you for joining the workation campaign, Ann!", mailer.sent[0].Subject)
	assert.Empty(t, mailer.sent[0].BCC)
	assert.NotContains(t, mailer.sent[0].HTML, "partnership")
}

func TestSendTemplateRecipientChecks(t *testing.T) {
	s := NewService(&fakeMailer{}, nil, "admin@example.com")
	tpl := model.EmailTemplate{Subject: "s", Content: "c"}

	_, err := s.SendTemplate(context.Background(), " ", tpl, nil)
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = s.SendTemplate(context.Background(), "not-an-email", tpl, nil)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestSendGridMailer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("X-Message-Id", "sg-42")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m, err := NewSendGridMailer(SendGridConfig{APIKey: "key", BaseURL: srv.URL, FromEmail: "no-reply@example.com", FromName: "Workation"})
	require.NoError(t, err)

	id, err := m.Send(context.Background(), Message{
		To:      []string{"ann@example.com"},
		BCC:     []string{"ANN@example.com", "admin@example.com"},
		Subject: "Hi",
		HTML:    "<p>Hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-42", id)

	p := got["personalizations"].([]any)[0].(map[string]any)
	assert.Len(t, p["to"], 1)
	assert.Equal(t, []any{map[string]any{"email": "admin@example.com"}}, p["bcc"])
	assert.Equal(t, "Hi", got["subject"])
}

func TestSendGridRejection(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":[{"message":"The from address does not match a verified Sender Identity."}]}`)
	}))
	defer srv.Close()

	m, err := NewSendGridMailer(SendGridConfig{APIKey: "key", BaseURL: srv.URL, FromEmail: "x@example.com", MaxRetries: 3})
	require.NoError(t, err)

	_, err = m.Send(context.Background(), Message{To: []string{"ann@example.com"}, Subject: "s", HTML: "h"})
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.True(t, he.Rejected())
	assert.Contains(t, he.Message, "verified Sender Identity")
	assert.Equal(t, 1, calls, "rejections are not retried")
}
