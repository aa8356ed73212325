package rpc

import "github.com/tensor-ninja/agent-fix/internal/repair"

// RunRepairRequest is the top-level request for starting a repair run.
type RunRepairRequest struct {
	SessionID     string                  `json:"session_id,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	Model         string                  `json:"model,omitempty"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	Context       []repair.ContextSnippet `json:"context,omitempty"`
	ContextQuery  string                  `json:"context_query,omitempty"` // when set, retrieve context from the index
}

// RepairEvent streams back progress from the daemon.
type RepairEvent struct {
	Type          string          `json:"type"` // token|progress|error|done
	Kind          string          `json:"kind,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Token         string          `json:"token,omitempty"`
	Message       string          `json:"message,omitempty"`
	Attempt       int             `json:"attempt,omitempty"`
	Dependency    string          `json:"dependency,omitempty"`
	Error         string          `json:"error,omitempty"`
	Done          bool            `json:"done,omitempty"`
	Outcome       *repair.Outcome `json:"outcome,omitempty"`
}

// RepairStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry the Run payload; later messages can carry
// control signals.
type RepairStreamRequest struct {
	Run           *RunRepairRequest `json:"run,omitempty"`
	Cancel        bool              `json:"cancel,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// IndexRequest asks the daemon to rebuild the similarity index over the
// given documents. When Documents is empty the daemon indexes its
// configured workspace.
type IndexRequest struct {
	Documents []IndexDocument `json:"documents,omitempty"`
}

// IndexDocument is one document submitted for indexing.
type IndexDocument struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
}

// IndexResponse reports the outcome of a rebuild.
type IndexResponse struct {
	Indexed int `json:"indexed"`
}

// QueryRequest asks for the documents most similar to Text.
type QueryRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

// QueryMatch is a single similarity hit.
type QueryMatch struct {
	Identifier string  `json:"identifier"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// QueryResponse carries ranked matches, best first.
type QueryResponse struct {
	Matches []QueryMatch `json:"matches"`
}
