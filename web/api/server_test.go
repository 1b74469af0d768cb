package api

import (
	"bufio"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/resultstore"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

func stoich() domain.Composition {
	return domain.Composition{Name: "stoich", X: map[string]float64{"H2": 0.2, "O2": 0.1, "AR": 0.7}}
}

func newTestServer(t *testing.T) (*Server, *resultstore.Store) {
	t.Helper()
	store, err := resultstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewServer(store, ":0"), store
}

func seed(t *testing.T, store *resultstore.Store, id string) sweep.Summary {
	t.Helper()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	info := sweep.Info{ID: id, Name: "h2", Started: started, Total: 2, Workers: 2}
	if err := store.Begin(info); err != nil {
		t.Fatal(err)
	}
	ok := domain.SweepResult{
		Case:          domain.ParameterCase{Index: 0, MechanismID: "h2-global", Temperature: 1400, Pressure: 101325, Composition: stoich()},
		Status:        domain.ResultOK,
		IgnitionDelay: 2.5e-4,
		Worker:        1,
	}
	undef := domain.SweepResult{
		Case:          domain.ParameterCase{Index: 1, MechanismID: "h2-global", Temperature: 900, Pressure: 101325, Composition: stoich()},
		Status:        domain.ResultUndefined,
		IgnitionDelay: math.NaN(),
		Worker:        2,
	}
	for _, r := range []domain.SweepResult{ok, undef} {
		if err := store.Append(r); err != nil {
			t.Fatal(err)
		}
	}
	sum := sweep.Summary{Info: info, Finished: started.Add(time.Second), OK: 1, Undefined: 1}
	if err := store.Finish(sum); err != nil {
		t.Fatal(err)
	}
	return sum
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListSweepsHandler(t *testing.T) {
	server, store := newTestServer(t)
	seed(t, store, "s1")
	seed(t, store, "s2")

	w := get(t, server.Handler(), "/api/sweeps")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var sweeps []SweepResponse
	json.NewDecoder(w.Body).Decode(&sweeps)
	if len(sweeps) != 2 {
		t.Errorf("Sweep count = %d, want 2", len(sweeps))
	}

	w = get(t, server.Handler(), "/api/sweeps?limit=1")
	json.NewDecoder(w.Body).Decode(&sweeps)
	if len(sweeps) != 1 {
		t.Errorf("Limited sweep count = %d, want 1", len(sweeps))
	}

	if w := get(t, server.Handler(), "/api/sweeps?limit=x"); w.Code != http.StatusBadRequest {
		t.Errorf("Bad limit status = %d, want 400", w.Code)
	}
}

func TestGetSweepHandler(t *testing.T) {
	server, store := newTestServer(t)
	seed(t, store, "s1")

	w := get(t, server.Handler(), "/api/sweeps/s1")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var sw SweepResponse
	json.NewDecoder(w.Body).Decode(&sw)
	if sw.ID != "s1" || sw.OK != 1 || sw.Undefined != 1 || sw.FinishedAt == nil {
		t.Errorf("Sweep = %+v", sw)
	}

	if w := get(t, server.Handler(), "/api/sweeps/missing"); w.Code != http.StatusNotFound {
		t.Errorf("Missing sweep status = %d, want 404", w.Code)
	}
}

func TestListResultsHandler(t *testing.T) {
	server, store := newTestServer(t)
	seed(t, store, "s1")

	w := get(t, server.Handler(), "/api/sweeps/s1/results")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	var results []ResultResponse
	json.NewDecoder(w.Body).Decode(&results)
	if len(results) != 2 {
		t.Fatalf("Result count = %d, want 2", len(results))
	}
	if results[0].IgnitionDelay == nil || *results[0].IgnitionDelay != 2.5e-4 {
		t.Errorf("results[0].IgnitionDelay = %v, want 2.5e-4", results[0].IgnitionDelay)
	}
	if results[1].IgnitionDelay != nil {
		t.Errorf("undefined delay = %v, want null", *results[1].IgnitionDelay)
	}
	if results[0].Composition != "stoich" {
		t.Errorf("Composition = %q, want stoich", results[0].Composition)
	}

	w = get(t, server.Handler(), "/api/sweeps/s1/results?status=undefined")
	json.NewDecoder(w.Body).Decode(&results)
	if len(results) != 1 || results[0].Index != 1 {
		t.Errorf("Filtered results = %+v", results)
	}

	if w := get(t, server.Handler(), "/api/sweeps/s1/results?status=burnt"); w.Code != http.StatusBadRequest {
		t.Errorf("Bad status filter = %d, want 400", w.Code)
	}
	if w := get(t, server.Handler(), "/api/sweeps/nope/results"); w.Code != http.StatusNotFound {
		t.Errorf("Missing sweep results = %d, want 404", w.Code)
	}
}

func TestNoStore(t *testing.T) {
	server := NewServer(nil, ":0")
	if w := get(t, server.Handler(), "/api/sweeps"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", w.Code)
	}
	if w := get(t, server.Handler(), "/api/status"); w.Code != http.StatusOK {
		t.Errorf("Status endpoint = %d, want 200", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	server := NewServer(nil, ":0")
	info := sweep.Info{ID: "live", Name: "h2", Started: time.Now(), Total: 3, Workers: 1}
	server.Begin(info)
	server.Append(domain.SweepResult{Case: domain.ParameterCase{Index: 0}, Status: domain.ResultOK, IgnitionDelay: 1e-4})
	server.Append(domain.SweepResult{Case: domain.ParameterCase{Index: 1}, Status: domain.ResultFailed, IgnitionDelay: math.NaN()})

	var status StatusResponse
	json.NewDecoder(get(t, server.Handler(), "/api/status").Body).Decode(&status)
	if !status.Running || status.Sweep == nil {
		t.Fatalf("Status = %+v, want running sweep", status)
	}
	if status.Sweep.Completed != 2 || status.Sweep.OK != 1 || status.Sweep.Failed != 1 {
		t.Errorf("Live = %+v", *status.Sweep)
	}

	server.Finish(sweep.Summary{Info: info, Finished: time.Now(), OK: 1, Failed: 1, Cancelled: true})
	status = StatusResponse{}
	json.NewDecoder(get(t, server.Handler(), "/api/status").Body).Decode(&status)
	if status.Running {
		t.Error("Running = true after Finish")
	}
	if status.Last == nil || !status.Last.Cancelled {
		t.Errorf("Last = %+v, want cancelled summary", status.Last)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(1)
	fast := hub.Subscribe()
	slow := hub.Subscribe()

	hub.Broadcast(Event{Type: "a"})
	<-fast
	hub.Broadcast(Event{Type: "b"})

	if hub.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after dropping the slow client", hub.Len())
	}
	<-slow // buffered "a"
	if _, ok := <-slow; ok {
		t.Error("slow client channel should be closed")
	}
	hub.Unsubscribe(slow) // no double close
	hub.Unsubscribe(fast)
	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}

func TestSSE_StreamsSweepEvents(t *testing.T) {
	server := NewServer(nil, ":0")
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	server.Begin(sweep.Info{ID: "live", Name: "h2", Started: time.Now(), Total: 1})

	lines := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	select {
	case line := <-lines:
		if line != "event: "+EventSweepStarted {
			t.Errorf("first line = %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	select {
	case line := <-lines:
		if !strings.HasPrefix(line, "data: ") || !strings.Contains(line, `"id":"live"`) {
			t.Errorf("data line = %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no data received")
	}
}

func TestWebSocket_StreamsSweepEvents(t *testing.T) {
	server := NewServer(nil, ":0")
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r := domain.SweepResult{
		Case:          domain.ParameterCase{Index: 4, MechanismID: "h2-global", Temperature: 1300, Pressure: 2e5, Composition: stoich()},
		Status:        domain.ResultOK,
		IgnitionDelay: 3e-4,
	}
	server.Append(r)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		Type string         `json:"type"`
		Data ResultResponse `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventCaseFinished {
		t.Errorf("Type = %q, want %q", ev.Type, EventCaseFinished)
	}
	if ev.Data.Index != 4 || ev.Data.IgnitionDelay == nil || *ev.Data.IgnitionDelay != 3e-4 {
		t.Errorf("Data = %+v", ev.Data)
	}
}
