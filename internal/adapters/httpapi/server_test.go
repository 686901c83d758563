package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/internal/adapters/httpapi"
	"github.com/surreyclinic/intake/internal/flow"
	"github.com/surreyclinic/intake/pkg/adapters/keyword"
	"github.com/surreyclinic/intake/pkg/adapters/memory"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/observability"
	"github.com/surreyclinic/intake/pkg/script"
	"github.com/surreyclinic/intake/pkg/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *observability.Broadcaster) {
	t.Helper()

	s := script.Default()
	specialties := make(map[string][]string)
	for name, sp := range s.Specialties() {
		specialties[name] = sp.Triggers
	}

	broadcaster := observability.NewBroadcaster(16)
	t.Cleanup(broadcaster.Close)

	orch := session.New(
		flow.New(s),
		memory.NewStore(),
		keyword.New(specialties),
		session.WithEventSinks(broadcaster),
	)

	srv := httpapi.NewServer(orch,
		httpapi.WithBroadcaster(broadcaster),
		httpapi.WithMetrics(observability.NewMetrics("test")),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, broadcaster
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type turnBody struct {
	SessionID    string         `json:"session_id"`
	NodeID       string         `json:"node_id"`
	Status       domain.Status  `json:"status"`
	Prompt       string         `json:"prompt"`
	Events       []domain.Event `json:"events"`
	TransportURL string         `json:"transport_url"`
}

func TestCreateSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions", map[string]string{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[turnBody](t, resp)
	assert.NotEmpty(t, body.SessionID)
	assert.Equal(t, "entry", body.NodeID)
	assert.Equal(t, domain.StatusActive, body.Status)
	assert.Contains(t, body.Prompt, "Is it okay if I collect")
	assert.Equal(t, "/ws", body.TransportURL)
}

func TestCreateSession_UnknownSpecialty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions", map[string]string{"specialty": "astrology"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUtteranceFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	created := decode[turnBody](t, postJSON(t, ts.URL+"/v1/sessions", nil))

	resp := postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/utterances", ts.URL, created.SessionID),
		map[string]string{"utterance": "yes, go ahead"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	turn := decode[turnBody](t, resp)
	assert.Equal(t, "chief_complaint", turn.NodeID)
	assert.Equal(t, domain.StatusActive, turn.Status)
}

func TestUtterance_EmptyBody(t *testing.T) {
	ts, _ := newTestServer(t)
	created := decode[turnBody](t, postJSON(t, ts.URL+"/v1/sessions", nil))

	resp := postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/utterances", ts.URL, created.SessionID),
		map[string]string{"utterance": ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUtterance_UnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/sessions/ghost/utterances", map[string]string{"utterance": "hello"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUtterance_TerminalConflict(t *testing.T) {
	ts, _ := newTestServer(t)
	created := decode[turnBody](t, postJSON(t, ts.URL+"/v1/sessions", nil))
	url := fmt.Sprintf("%s/v1/sessions/%s/utterances", ts.URL, created.SessionID)

	resp := postJSON(t, url, map[string]string{"utterance": "please call an ambulance"})
	turn := decode[turnBody](t, resp)
	require.Equal(t, domain.StatusEscalated, turn.Status)
	require.NotEmpty(t, turn.Events)
	assert.Equal(t, domain.EventStaffAlert, turn.Events[0].Type)

	resp = postJSON(t, url, map[string]string{"utterance": "hello?"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetAndListAndDelete(t *testing.T) {
	ts, _ := newTestServer(t)
	created := decode[turnBody](t, postJSON(t, ts.URL+"/v1/sessions", nil))

	resp, err := http.Get(fmt.Sprintf("%s/v1/sessions/%s", ts.URL, created.SessionID))
	require.NoError(t, err)
	sess := decode[domain.Session](t, resp)
	assert.Equal(t, created.SessionID, sess.ID)

	resp, err = http.Get(ts.URL + "/v1/sessions")
	require.NoError(t, err)
	list := decode[struct {
		Sessions []string `json:"sessions"`
	}](t, resp)
	assert.Contains(t, list.Sessions, created.SessionID)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/sessions/%s", ts.URL, created.SessionID), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("%s/v1/sessions/%s", ts.URL, created.SessionID))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthzAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Trigger a staff alert while the stream is open.
	created := decode[turnBody](t, postJSON(t, ts.URL+"/v1/sessions", nil))
	postJSON(t, fmt.Sprintf("%s/v1/sessions/%s/utterances", ts.URL, created.SessionID),
		map[string]string{"utterance": "please call an ambulance"}).Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var sawAlert bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: "+string(domain.EventStaffAlert)) {
			sawAlert = true
			break
		}
	}
	assert.True(t, sawAlert, "expected a staff_alert event on the stream")
}
