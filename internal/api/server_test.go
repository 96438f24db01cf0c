package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-test/deep"
	"github.com/gorilla/websocket"

	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/db"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/notify"
	"github.com/lure-project/lure/internal/ping"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeContacts struct {
	contacts  []db.Contact
	counts    map[string]int64
	err       error
	lastLimit int
}

func (f *fakeContacts) Recent(_ context.Context, limit int) ([]db.Contact, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.contacts) {
		return f.contacts[:limit], nil
	}
	return f.contacts, nil
}

func (f *fakeContacts) CountByKind(context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

type fakeStats notify.Stats

func (f fakeStats) Stats() notify.Stats { return notify.Stats(f) }

func newTestServer(contacts ContactReader, stats StatsSource) *Server {
	s := NewServer(config.APIConfig{Host: "127.0.0.1", Port: 0}, nil)
	gin.SetMode(gin.TestMode)
	s.SetDependencies(contacts, stats)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPing(t *testing.T) {
	s := newTestServer(nil, nil)

	rec := get(t, s.Handler(), "/api/public/ping")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["service"] != "lure" {
		t.Errorf("body = %v", body)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestContacts(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeContacts{
		contacts: []db.Contact{
			{ID: 2, Kind: "join", RemoteAddr: "10.0.0.2:50000", PlayerName: "Duckulus", CreatedAt: created},
			{ID: 1, Kind: "modern", RemoteAddr: "10.0.0.1:50000", ProtocolVersion: 765, CreatedAt: created},
		},
	}

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
		wantLimit int
	}{
		{"default limit", "/api/contacts", http.StatusOK, 2, defaultContactLimit},
		{"explicit limit", "/api/contacts?limit=1", http.StatusOK, 1, 1},
		{"clamped limit", "/api/contacts?limit=999999", http.StatusOK, 2, maxContactLimit},
		{"zero limit", "/api/contacts?limit=0", http.StatusBadRequest, 0, 0},
		{"junk limit", "/api/contacts?limit=abc", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.lastLimit = 0
			s := newTestServer(store, nil)

			rec := get(t, s.Handler(), tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var body struct {
				Count    int          `json:"count"`
				Contacts []db.Contact `json:"contacts"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Count != tt.wantCount || len(body.Contacts) != tt.wantCount {
				t.Errorf("count = %d (%d contacts), want %d", body.Count, len(body.Contacts), tt.wantCount)
			}
			if store.lastLimit != tt.wantLimit {
				t.Errorf("limit passed to store = %d, want %d", store.lastLimit, tt.wantLimit)
			}
			if diff := deep.Equal(body.Contacts[0], store.contacts[0]); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestContactsDisabled(t *testing.T) {
	s := newTestServer(nil, nil)
	if rec := get(t, s.Handler(), "/api/contacts"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestContactsStoreError(t *testing.T) {
	s := newTestServer(&fakeContacts{err: errors.New("disk on fire")}, nil)
	rec := get(t, s.Handler(), "/api/contacts")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Error("internal error leaked to client")
	}
}

func TestStats(t *testing.T) {
	store := &fakeContacts{counts: map[string]int64{"join": 3, "legacy": 1}}
	s := newTestServer(store, fakeStats{Recorded: 4, Delivered: 3, Dropped: 1})

	rec := get(t, s.Handler(), "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Contacts      map[string]int64 `json:"contacts"`
		Notifications notify.Stats     `json:"notifications"`
		FeedClients   int              `json:"feed_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(body.Contacts, store.counts); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(body.Notifications, notify.Stats{Recorded: 4, Delivered: 3, Dropped: 1}); diff != nil {
		t.Error(diff)
	}
	if body.FeedClients != 0 {
		t.Errorf("feed_clients = %d, want 0", body.FeedClients)
	}
}

func TestStatsWithoutDependencies(t *testing.T) {
	s := newTestServer(nil, nil)

	rec := get(t, s.Handler(), "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["contacts"]; ok {
		t.Error("contacts present without a store")
	}
	if _, ok := body["notifications"]; ok {
		t.Error("notifications present without a pipeline")
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	s := newTestServer(nil, nil)
	if rec := get(t, s.Handler(), "/api/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLiveFeed(t *testing.T) {
	feed := NewFeed(nil)
	s := NewServer(config.APIConfig{}, feed)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer feed.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/contacts/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return feed.Count() == 1 })

	remote := &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 40000}
	req := ping.NewRequest(remote, ping.JoinAttempt{PlayerName: "Duckulus", PlayerID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20"})
	if err := feed.HandleContact(context.Background(), events.NewContactEvent("test", req)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Event   string           `json:"event"`
		Kind    string           `json:"kind"`
		Remote  string           `json:"remote"`
		Request ping.JoinAttempt `json:"request"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	want := ping.JoinAttempt{PlayerName: "Duckulus", PlayerID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20"}
	if msg.Event != "contact" || msg.Kind != "join" || msg.Remote != "10.1.2.3:40000" {
		t.Errorf("msg = %+v", msg)
	}
	if diff := deep.Equal(msg.Request, want); diff != nil {
		t.Error(diff)
	}
}

func TestLiveFeedClose(t *testing.T) {
	feed := NewFeed([]string{"*"})
	s := NewServer(config.APIConfig{}, feed)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/contacts/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return feed.Count() == 1 })

	feed.Close()
	if feed.Count() != 0 {
		t.Errorf("Count() = %d after Close, want 0", feed.Count())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read after Close: %v, want normal closure", err)
	}

	// New clients are refused once closed.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("late client read: %v, want going away", err)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "http://evil.example", true},
		{[]string{"*"}, "http://evil.example", true},
		{[]string{"http://dash.example"}, "http://dash.example", true},
		{[]string{"dash.example"}, "https://dash.example", true},
		{[]string{"http://dash.example"}, "http://evil.example", false},
		{[]string{"http://dash.example"}, "", true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/contacts/live", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originChecker(tt.allowed)(r); got != tt.want {
			t.Errorf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
		}
	}
}
