package domain

import "fmt"

// ScopeKind names the visibility predicate applied to a retrieval.
type ScopeKind string

const (
	// ScopeGlobal restricts retrieval to the GLOBAL workspace.
	ScopeGlobal ScopeKind = "global"

	// ScopeWorkspace restricts retrieval to one user-defined workspace.
	ScopeWorkspace ScopeKind = "workspace"

	// ScopeSession restricts retrieval to documents attached to one session.
	ScopeSession ScopeKind = "session"
)

// IsValid returns true if the scope kind is recognised.
func (k ScopeKind) IsValid() bool {
	switch k {
	case ScopeGlobal, ScopeWorkspace, ScopeSession:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k ScopeKind) String() string {
	return string(k)
}

// Scope is the predicate restricting which documents participate in a
// retrieval. It is enforced in SQL, never by post-filtering results.
type Scope struct {
	// Kind selects the predicate shape.
	Kind ScopeKind

	// WorkspaceID qualifies workspace scope (GLOBAL for global scope).
	WorkspaceID string

	// SessionID qualifies session scope.
	SessionID string
}

// GlobalScope returns the scope covering the shared corpus.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal, WorkspaceID: GlobalWorkspaceID}
}

// WorkspaceScope returns the scope covering one workspace.
func WorkspaceScope(workspaceID string) Scope {
	return Scope{Kind: ScopeWorkspace, WorkspaceID: workspaceID}
}

// SessionScope returns the scope covering documents attached to a session.
func SessionScope(sessionID string) Scope {
	return Scope{Kind: ScopeSession, SessionID: sessionID}
}

// Validate rejects scopes whose qualifier is missing.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		return nil
	case ScopeWorkspace:
		if s.WorkspaceID == "" {
			return fmt.Errorf("workspace scope without workspace id: %w", ErrInvalidScope)
		}
		return nil
	case ScopeSession:
		if s.SessionID == "" {
			return fmt.Errorf("session scope without session id: %w", ErrInvalidScope)
		}
		return nil
	default:
		return fmt.Errorf("unknown scope kind %q: %w", s.Kind, ErrInvalidScope)
	}
}

// String renders the scope for logs and debug envelopes.
func (s Scope) String() string {
	switch s.Kind {
	case ScopeWorkspace:
		return fmt.Sprintf("workspace(%s)", s.WorkspaceID)
	case ScopeSession:
		return fmt.Sprintf("session(%s)", s.SessionID)
	default:
		return string(s.Kind)
	}
}
