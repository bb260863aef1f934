package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fumikura/outfeed"
	"github.com/fumikura/outfeed/internal/devserver/middleware"
)

// --- mocks ---

type mockStore struct {
	mu       sync.Mutex
	stored   []outfeed.Draft
	page     []outfeed.Record
	total    int64
	pageErr  error
	lastPage int
	lastF    outfeed.Filter
}

func (m *mockStore) Store(ctx context.Context, ownerID string, d outfeed.Draft) (outfeed.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, d)
	return outfeed.Record{
		ID:        "rec-1",
		OwnerID:   ownerID,
		ToolName:  d.ToolName,
		Content:   outfeed.OutputContent{Questions: d.Questions, Difficulty: d.Difficulty},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *mockStore) Page(ctx context.Context, ownerID string, page int, f outfeed.Filter, size int) ([]outfeed.Record, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPage = page
	m.lastF = f
	return m.page, m.total, m.pageErr
}

type mockSignal struct {
	mu        sync.Mutex
	published []outfeed.Event
	events    chan outfeed.Event
}

func (m *mockSignal) Publish(ctx context.Context, ownerID string, event outfeed.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return nil
}

func (m *mockSignal) Listen(ctx context.Context, ownerID string, out chan<- outfeed.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.events:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

type mockPages struct {
	mu     sync.Mutex
	cached map[string]int
}

func (m *mockPages) key(ownerID string, f outfeed.Filter) string {
	return ownerID + "|" + f.Tool + "|" + f.Date
}

func (m *mockPages) Get(ownerID string, f outfeed.Filter) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.cached[m.key(ownerID, f)]
	return n, ok
}

func (m *mockPages) Set(ownerID string, f outfeed.Filter, totalPages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		m.cached = map[string]int{}
	}
	m.cached[m.key(ownerID, f)] = totalPages
}

func (m *mockPages) Invalidate(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cached, m.key(ownerID, outfeed.Filter{}))
}

func newTestServer(store *mockStore, sig *mockSignal) *echo.Echo {
	e := echo.New()
	auth := middleware.NewAuthMiddleware(middleware.StaticVerifier{})
	e.Use(auth.IdentifyRequester)
	NewHandler(store, sig, &mockPages{}).RegisterRoutes(e)
	return e
}

// --- tests ---

func TestGetOutputsRequiresAuth(t *testing.T) {
	e := newTestServer(&mockStore{}, &mockSignal{})

	req := httptest.NewRequest(http.MethodGet, "/api/get-outputs/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetOutputsPagingMath(t *testing.T) {
	store := &mockStore{
		page:  []outfeed.Record{{ID: "a"}, {ID: "b"}},
		total: 19, // two full pages of 9 plus one leftover
	}
	e := newTestServer(store, &mockSignal{})

	req := httptest.NewRequest(http.MethodGet, "/api/get-outputs/?page=2&tool=quiz&date=2026-08-29", nil)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data       []outfeed.Record `json:"data"`
		TotalPages int              `json:"total_pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", resp.TotalPages)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Data))
	}
	if store.lastPage != 2 || store.lastF.Tool != "quiz" || store.lastF.Date != "2026-08-29" {
		t.Fatalf("filter not forwarded: page=%d filter=%+v", store.lastPage, store.lastF)
	}
}

func TestGetOutputsEmptyFeed(t *testing.T) {
	e := newTestServer(&mockStore{total: 0}, &mockSignal{})

	req := httptest.NewRequest(http.MethodGet, "/api/get-outputs/", nil)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp struct {
		Data       []outfeed.Record `json:"data"`
		TotalPages int              `json:"total_pages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalPages != 1 {
		t.Fatalf("expected total_pages floor of 1, got %d", resp.TotalPages)
	}
	if resp.Data == nil {
		t.Fatalf("expected empty array, got null")
	}
}

func TestGetOutputsRejectsBadPage(t *testing.T) {
	e := newTestServer(&mockStore{}, &mockSignal{})

	req := httptest.NewRequest(http.MethodGet, "/api/get-outputs/?page=zero", nil)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStoreOutputPublishesInsert(t *testing.T) {
	store := &mockStore{}
	sig := &mockSignal{}
	e := newTestServer(store, sig)

	body, _ := json.Marshal(map[string]any{
		"tool_name": "  quizmaster ",
		"output_content": map[string]any{
			"questions":  []string{" q1 ", ""},
			"difficulty": "medium",
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/store-output/", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created outfeed.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ToolName != "quizmaster" || created.OwnerID != "user-1" {
		t.Fatalf("unexpected record: %+v", created)
	}

	if len(store.stored) != 1 || len(store.stored[0].Questions) != 1 {
		t.Fatalf("expected cleaned draft to be stored, got %+v", store.stored)
	}
	if len(sig.published) != 1 || sig.published[0].Type != outfeed.EventInsert {
		t.Fatalf("expected one insert event, got %+v", sig.published)
	}
	if sig.published[0].Record.ID != "rec-1" {
		t.Fatalf("event should carry the created record, got %+v", sig.published[0].Record)
	}
}

func TestStoreOutputRejectsInvalidDraft(t *testing.T) {
	store := &mockStore{}
	e := newTestServer(store, &mockSignal{})

	body := strings.NewReader(`{"tool_name":"","output_content":{"questions":["q"]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/store-output/", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(store.stored) != 0 {
		t.Fatalf("invalid draft reached the store")
	}
}

func TestRealtimeForwardsEvents(t *testing.T) {
	sig := &mockSignal{events: make(chan outfeed.Event, 1)}
	e := newTestServer(&mockStore{}, sig)

	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "listen", "owner": "user-1"}); err != nil {
		t.Fatalf("listen request failed: %v", err)
	}
	// Heartbeats are accepted silently.
	if err := conn.WriteJSON(map[string]string{"type": "h"}); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	want := outfeed.Event{
		Type:   outfeed.EventInsert,
		Record: outfeed.Record{ID: "rec-7", OwnerID: "user-1", ToolName: "quizmaster"},
	}
	sig.events <- want

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got outfeed.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event failed: %v", err)
	}
	if got.Type != outfeed.EventInsert || got.Record.ID != "rec-7" {
		t.Fatalf("unexpected event: %+v", got)
	}
}
