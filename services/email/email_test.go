package emailsvc

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/plagiat/core"
	logsvc "github.com/trezcool/plagiat/services/logger"
)

func newConf() *core.Config {
	conf := &core.Config{AppName: "Plagiat", TestMode: true}
	conf.Email = core.EmailConfig{DefaultFromName: "Plagiat", DefaultFromEmail: "noreply@plagiat.test"}
	return conf
}

func newLogger(w *bytes.Buffer, conf *core.Config) core.Logger {
	lgr := logsvc.NewRollbarLogger(log.New(w, "", 0), conf)
	lgr.Enable(false)
	return lgr
}

func newMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:          []mail.Address{{Name: "Alice", Address: "alice@example.com"}},
		Cc:          []mail.Address{{Address: "reviewer@example.com"}},
		Subject:     "Submission flagged",
		TextContent: "plain body",
		HTMLContent: "<p>html body</p>",
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		apiKey  string
		wantErr bool
	}{
		{name: "default", backend: ""},
		{name: "console", backend: "console"},
		{name: "none", backend: "none"},
		{name: "sendgrid", backend: "sendgrid", apiKey: "key"},
		{name: "sendgrid without key", backend: "sendgrid", wantErr: true},
		{name: "unknown", backend: "carrier-pigeon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := newConf()
			conf.Email.Backend = tt.backend
			conf.Email.SendgridApiKey = tt.apiKey

			svc, err := New(log.New(ioutil.Discard, "", 0), newLogger(new(bytes.Buffer), conf), conf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}

	conf := newConf()
	conf.Email.Backend = "lol"
	_, err := New(log.New(ioutil.Discard, "", 0), newLogger(new(bytes.Buffer), conf), conf)
	assert.Equal(t, errUnknownBackend, errors.Cause(err))
}

func Test_consoleService_render(t *testing.T) {
	conf := newConf()
	svc := NewConsoleService(log.New(ioutil.Discard, "", 0), newLogger(new(bytes.Buffer), conf), conf).(*consoleService)

	body, err := svc.render(*newMessage())
	require.NoError(t, err)
	assert.Contains(t, body, "From: \"Plagiat\" <noreply@plagiat.test>\r\n")
	assert.Contains(t, body, "To: \"Alice\" <alice@example.com>\r\n")
	assert.Contains(t, body, "Cc: <reviewer@example.com>\r\n")
	assert.Contains(t, body, "Subject: [Plagiat] Submission flagged\r\n")
	assert.Contains(t, body, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, body, "plain body")
	assert.Contains(t, body, "<p>html body</p>")
	assert.Less(t, strings.Index(body, "plain body"), strings.Index(body, "<p>html body</p>"))
}

func Test_consoleService_SendMessages(t *testing.T) {
	conf := newConf()
	out := make(chan string, 1)
	std := log.New(writerFunc(func(p []byte) (int, error) {
		out <- string(p)
		return len(p), nil
	}), "", 0)
	svc := NewConsoleService(std, newLogger(new(bytes.Buffer), conf), conf)

	svc.SendMessages(&core.EmailMessage{Subject: "no recipients", TextContent: "x"}, newMessage())
	select {
	case body := <-out:
		assert.Contains(t, body, "Subject: [Plagiat] Submission flagged")
	case <-time.After(2 * time.Second):
		t.Fatal("message not printed")
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func Test_sendgridService_prepare(t *testing.T) {
	conf := newConf()
	svc := NewSendgridService(newLogger(new(bytes.Buffer), conf), conf).(*sendgridService)

	m := svc.prepare(*newMessage())
	assert.Equal(t, sgmail.NewEmail("Plagiat", "noreply@plagiat.test"), m.From)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Plagiat] Submission flagged", p.Subject)
	assert.Equal(t, []*sgmail.Email{sgmail.NewEmail("Alice", "alice@example.com")}, p.To)
	assert.Equal(t, []*sgmail.Email{sgmail.NewEmail("", "reviewer@example.com")}, p.CC)
	assert.Equal(t, []*sgmail.Content{
		sgmail.NewContent("text/plain", "plain body"),
		sgmail.NewContent("text/html", "<p>html body</p>"),
	}, m.Content)
}

func Test_sendgridService_SendMessages(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, sendgridEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer s3cr3t", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
		received <- payload
	}))
	defer srv.Close()

	conf := newConf()
	conf.Email.SendgridApiKey = "s3cr3t"
	svc := NewSendgridService(newLogger(new(bytes.Buffer), conf), conf).(*sendgridService)
	svc.host = srv.URL

	svc.SendMessages(newMessage())
	select {
	case payload := <-received:
		assert.Equal(t, map[string]interface{}{"name": "Plagiat", "email": "noreply@plagiat.test"}, payload["from"])
	case <-time.After(5 * time.Second):
		t.Fatal("message not sent")
	}
}

func TestWait(t *testing.T) {
	conf := newConf()
	out := new(bytes.Buffer) // log.Logger serializes writes
	svc := NewConsoleService(log.New(out, "", 0), newLogger(new(bytes.Buffer), conf), conf)

	for i := 0; i < 5; i++ {
		svc.SendMessages(newMessage())
	}
	Wait(svc)
	assert.Equal(t, 5, strings.Count(out.String(), "Subject: [Plagiat] Submission flagged"))

	Wait(discardService{}) // no-op
}
