package alert_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/internal/adapters/alert"
	"github.com/surreyclinic/intake/pkg/domain"
)

func TestWebhook_DeliversStaffAlerts(t *testing.T) {
	received := make(chan domain.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev domain.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
	}))
	defer srv.Close()

	hook := alert.NewWebhook(srv.URL)

	record := domain.NewRecord()
	record.Set("chief_complaint", "chest pain")
	hook.Publish(context.Background(), domain.Event{
		Type:      domain.EventStaffAlert,
		SessionID: "s1",
		NodeID:    "chest_pain_assessment",
		Reason:    "emergency phrase detected",
		Record:    record,
	})

	select {
	case ev := <-received:
		assert.Equal(t, "s1", ev.SessionID)
		assert.Equal(t, "emergency phrase detected", ev.Reason)
		require.NotNil(t, ev.Record)
		assert.True(t, ev.Record.Has("chief_complaint"))
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer srv.Close()

	hook := alert.NewWebhook(srv.URL)
	hook.Publish(context.Background(), domain.Event{Type: domain.EventNodeEnter, SessionID: "s1"})

	select {
	case <-hits:
		t.Fatal("node_enter should not be delivered")
	case <-time.After(200 * time.Millisecond):
	}
}
