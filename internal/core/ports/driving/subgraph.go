package driving

import (
	"context"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

// SubgraphInput is the state the decision subgraph reads. It carries
// only what the four nodes need; persistent domain state stays in
// storage and per-request candidates stay inside the retriever.
type SubgraphInput struct {
	// UserMessage is the raw chat message.
	UserMessage string

	// Mode distinguishes ordinary chat from document-bound chat.
	Mode domain.ConversationMode

	// SessionID identifies the active session, when there is one.
	SessionID string

	// HasSessionDocument is true when the session has an attached
	// document (uploaded PDF).
	HasSessionDocument bool

	// Settings is the read-only snapshot for this request.
	Settings domain.RetrievalSettings
}

// RetrievalRouter runs the decide -> select scope -> rewrite -> execute
// subgraph and returns the terminal retrieval result. It never writes
// to persistent storage.
type RetrievalRouter interface {
	// Route executes the subgraph for one message.
	Route(ctx context.Context, input SubgraphInput) (domain.RetrievalResult, error)
}
