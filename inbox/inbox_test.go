package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/remotehand/protocol"
)

type call struct {
	sender string
	text   string
}

type stubAgent struct {
	mu       sync.Mutex
	commands []call
	observed []call
	spying   bool
	replyErr error
}

func (s *stubAgent) HandleUnsolicitedCommand(_ context.Context, sender, text string) (*protocol.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, call{sender, text})
	resp := protocol.NewResponse()
	resp.Set(protocol.FieldInfo, "to access use 'password'")
	return resp, s.replyErr
}

func (s *stubAgent) ObserveUnsolicited(_ context.Context, sender, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = append(s.observed, call{sender, text})
	return s.spying
}

func newTestRouter(agent Agent) http.Handler {
	return New(agent, WithLogger(slog.New(slog.DiscardHandler))).Router()
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&stubAgent{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCommand_RunsAndEchoesResponse(t *testing.T) {
	agent := &stubAgent{}
	h := newTestRouter(agent)

	rec := postForm(t, h, "/sms/command", url.Values{
		"sender":  {"+15550001"},
		"message": {`{"request":"lockNow"}`},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"info":"to access use 'password'"}`, rec.Body.String())
	assert.Equal(t, []call{{"+15550001", `{"request":"lockNow"}`}}, agent.commands)
}

func TestCommand_ReplyFailure(t *testing.T) {
	agent := &stubAgent{replyErr: errors.New("modem offline")}
	h := newTestRouter(agent)

	rec := postForm(t, h, "/sms/command", url.Values{"sender": {"+1"}, "message": {"x"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "modem offline", body.Error)
}

func TestReceived_ReportsMirroring(t *testing.T) {
	for _, spying := range []bool{false, true} {
		agent := &stubAgent{spying: spying}
		h := newTestRouter(agent)

		rec := postForm(t, h, "/sms/received", url.Values{"sender": {"+1"}, "message": {"hi"}})
		assert.Equal(t, http.StatusAccepted, rec.Code)

		var body ReceivedResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, spying, body.Mirrored)
		assert.Equal(t, []call{{"+1", "hi"}}, agent.observed)
		assert.Empty(t, agent.commands)
	}
}

func TestMissingSender(t *testing.T) {
	agent := &stubAgent{}
	h := newTestRouter(agent)

	for _, path := range []string{"/sms/command", "/sms/received"} {
		rec := postForm(t, h, path, url.Values{"message": {"hi"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	assert.Empty(t, agent.commands)
	assert.Empty(t, agent.observed)
}

func TestWrongContentType(t *testing.T) {
	h := newTestRouter(&stubAgent{})
	req := httptest.NewRequest(http.MethodPost, "/sms/command", strings.NewReader(`{"sender":"+1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(&stubAgent{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sms/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
