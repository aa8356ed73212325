package repair

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tensor-ninja/agent-fix/internal/index"
	"github.com/tensor-ninja/agent-fix/internal/repair"
	"github.com/tensor-ninja/agent-fix/internal/rpc"
)

// ContextProvider retrieves similar documents for a repair prompt.
// Implemented by index.Index.
type ContextProvider interface {
	Query(ctx context.Context, text string, topK int) ([]index.Match, error)
}

// RepairRunner bridges the repair orchestrator to RPC events.
type RepairRunner struct {
	Orchestrator *repair.Orchestrator
	Index        ContextProvider
	Logger       *zap.Logger
}

// Run starts a repair run and translates orchestrator events into
// transport events. Narration is additionally split into word-based token
// events for incremental display.
func (r *RepairRunner) Run(reqCtx *http.Request, req rpc.RunRepairRequest) (<-chan rpc.RepairEvent, error) {
	out := make(chan rpc.RepairEvent, 16)
	go func() {
		defer close(out)
		ctx := reqCtx.Context()
		corr := req.CorrelationID
		if corr == "" {
			corr = req.SessionID
		}

		if r.Orchestrator == nil {
			out <- rpc.RepairEvent{Type: "error", SessionID: req.SessionID, CorrelationID: corr, Error: "repair orchestrator unavailable"}
			return
		}

		snippets := req.Context
		if req.ContextQuery != "" && r.Index != nil {
			matches, err := r.Index.Query(ctx, req.ContextQuery, 0)
			if err != nil {
				r.logf("context retrieval failed: %v", err)
				out <- rpc.RepairEvent{Type: "error", SessionID: req.SessionID, CorrelationID: corr, Error: "context retrieval failed: " + err.Error()}
				return
			}
			for _, m := range matches {
				snippets = append(snippets, repair.ContextSnippet{
					Identifier: m.Identifier,
					Content:    m.Content,
					Score:      m.Score,
				})
			}
		}

		events := r.Orchestrator.Run(ctx, repair.Request{
			Title:       req.Title,
			Description: req.Description,
			Context:     snippets,
			Model:       req.Model,
		})

		for ev := range events {
			transportEv := translateEvent(ev, req.SessionID, corr)
			select {
			case <-ctx.Done():
				out <- rpc.RepairEvent{Type: "error", SessionID: req.SessionID, CorrelationID: corr, Error: "cancelled"}
				return
			case out <- transportEv:
			}

			if ev.Kind == repair.EventNarration {
				for _, token := range strings.Fields(ev.Text) {
					select {
					case <-ctx.Done():
						out <- rpc.RepairEvent{Type: "error", SessionID: req.SessionID, CorrelationID: corr, Error: "cancelled"}
						return
					case out <- rpc.RepairEvent{Type: "token", SessionID: req.SessionID, CorrelationID: corr, Token: token}:
					}
				}
			}
		}
	}()
	return out, nil
}

func translateEvent(ev repair.Event, sessionID, corr string) rpc.RepairEvent {
	transportEv := rpc.RepairEvent{
		Kind:          string(ev.Kind),
		SessionID:     sessionID,
		CorrelationID: corr,
		Message:       ev.Text,
		Attempt:       ev.Attempt,
		Dependency:    ev.Dependency,
	}
	switch ev.Kind {
	case repair.EventOutcome:
		transportEv.Type = "done"
		transportEv.Done = true
		transportEv.Outcome = ev.Outcome
	case repair.EventError:
		transportEv.Type = "error"
		transportEv.Error = ev.Text
	case repair.EventNarration:
		transportEv.Type = "message"
	default:
		transportEv.Type = "progress"
	}
	return transportEv
}

func (r *RepairRunner) logf(format string, args ...interface{}) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Sugar().Infof(format, args...)
}
