package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tensor-ninja/agent-fix/internal/index"
	"github.com/tensor-ninja/agent-fix/internal/rpc"
)

// Store is the index surface the handlers operate on. Implemented by
// index.Index.
type Store interface {
	Rebuild(ctx context.Context, docs []index.Document) (int, error)
	Query(ctx context.Context, text string, topK int) ([]index.Match, error)
}

// DocumentSource supplies workspace documents when a rebuild request names
// none of its own.
type DocumentSource interface {
	Collect(ctx context.Context) ([]index.Document, error)
}

// Metrics records rebuild sizes. Implemented by observability.Metrics.
type Metrics interface {
	RecordIndexRebuild(records int)
}

// RebuildHandler serves POST /index: it re-embeds the submitted documents
// and atomically replaces the similarity index.
type RebuildHandler struct {
	Index   Store
	Source  DocumentSource
	Metrics Metrics
	Logger  *zap.Logger
}

func (h RebuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpc.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	docs := make([]index.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		if strings.TrimSpace(d.Identifier) == "" {
			http.Error(w, "document identifier must not be empty", http.StatusBadRequest)
			return
		}
		docs = append(docs, index.Document{Identifier: d.Identifier, Content: d.Content})
	}

	if len(docs) == 0 {
		if h.Source == nil {
			http.Error(w, "no documents submitted and no workspace configured", http.StatusBadRequest)
			return
		}
		collected, err := h.Source.Collect(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("collect workspace: %v", err), http.StatusInternalServerError)
			return
		}
		docs = collected
	}

	indexed, err := h.Index.Rebuild(r.Context(), docs)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("index rebuild failed", zap.Error(err))
		}
		http.Error(w, fmt.Sprintf("rebuild index: %v", err), http.StatusInternalServerError)
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordIndexRebuild(indexed)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpc.IndexResponse{Indexed: indexed})
}

// QueryHandler serves POST /query: ranked similarity matches for a text.
type QueryHandler struct {
	Index Store
}

func (h QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpc.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text must not be empty", http.StatusBadRequest)
		return
	}

	matches, err := h.Index.Query(r.Context(), req.Text, req.TopK)
	if err != nil {
		if errors.Is(err, index.ErrNotIndexed) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("query index: %v", err), http.StatusInternalServerError)
		return
	}

	resp := rpc.QueryResponse{Matches: make([]rpc.QueryMatch, 0, len(matches))}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, rpc.QueryMatch{Identifier: m.Identifier, Content: m.Content, Score: m.Score})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
