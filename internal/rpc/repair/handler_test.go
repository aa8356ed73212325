package repair

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tensor-ninja/agent-fix/internal/rpc"
)

type scriptedRunner struct {
	events []rpc.RepairEvent
	last   rpc.RunRepairRequest
}

func (s *scriptedRunner) Run(_ *http.Request, req rpc.RunRepairRequest) (<-chan rpc.RepairEvent, error) {
	s.last = req
	out := make(chan rpc.RepairEvent, len(s.events))
	for _, ev := range s.events {
		ev.SessionID = req.SessionID
		out <- ev
	}
	close(out)
	return out, nil
}

func TestHandlerStreamsEvents(t *testing.T) {
	runner := &scriptedRunner{events: []rpc.RepairEvent{
		{Type: "progress", Kind: "attempt", Message: "Attempt 1 of 5..."},
		{Type: "done", Done: true},
	}}
	handler := NewHandler(runner, nil)
	body := bytes.NewBufferString(`{"title":"broken add","description":"add returns wrong sum"}`)
	req := httptest.NewRequest(http.MethodPost, "/repair/run", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var events []rpc.RepairEvent
	for scanner.Scan() {
		var evt rpc.RepairEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			t.Fatalf("invalid json event: %v", err)
		}
		events = append(events, evt)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[1].Done {
		t.Fatalf("expected final event to be done")
	}
}

func TestHandlerAssignsSessionID(t *testing.T) {
	runner := &scriptedRunner{events: []rpc.RepairEvent{{Type: "done", Done: true}}}
	handler := NewHandler(runner, nil)
	body := bytes.NewBufferString(`{"title":"t","description":"d"}`)
	req := httptest.NewRequest(http.MethodPost, "/repair/run", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if runner.last.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if runner.last.CorrelationID != runner.last.SessionID+"-corr" {
		t.Fatalf("unexpected correlation id %q", runner.last.CorrelationID)
	}
}

func TestHandlerRejectsNonPost(t *testing.T) {
	handler := NewHandler(&scriptedRunner{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/repair/run", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHandlerRejectsBadJSON(t *testing.T) {
	handler := NewHandler(&scriptedRunner{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/repair/run", bytes.NewBufferString(`{`))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
