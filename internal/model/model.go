// Package model defines the durable entities described by tinymem's data
// model: sessions, hook events, messages, questions, chains, links and
// artifacts.
package model

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionDone   SessionStatus = "done"
)

// Session represents one agent run.
type Session struct {
	ID        string        `json:"id"`
	Agent     string        `json:"agent"`
	Cwd       string        `json:"cwd"`
	Name      string        `json:"name,omitempty"`
	CreatedAt int64         `json:"created_at"`
	Status    SessionStatus `json:"status"`
}

// HookKind distinguishes a pre-tool from a post-tool event.
type HookKind string

const (
	HookPre  HookKind = "pre"
	HookPost HookKind = "post"
)

// Hook is an ordered, append-only per-session log entry.
type Hook struct {
	Seq  int64    `json:"seq"`
	Kind HookKind `json:"kind"`
	Task string   `json:"task"`
	Meta any      `json:"meta,omitempty"`
	TS   int64    `json:"ts"`
}

// Message is a per-session append-only entry (role/content/ts).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// QuestionState is the terminal-once state machine of a Question.
type QuestionState string

const (
	QuestionPending  QuestionState = "pending"
	QuestionAnswered QuestionState = "answered"
	QuestionExpired  QuestionState = "expired"
)

// Question is the rendezvous entity: a blocking ask posed by an agent.
type Question struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Question   string        `json:"question"`
	CreatedAt  int64         `json:"created_at"`
	State      QuestionState `json:"state"`
	Answer     string        `json:"answer,omitempty"`
	AnsweredAt int64         `json:"answered_at,omitempty"`
}

// Terminal reports whether the question has reached a terminal state.
func (q *Question) Terminal() bool {
	return q.State == QuestionAnswered || q.State == QuestionExpired
}

// Link is one checkpoint within a Chain.
type Link struct {
	Slug    string `json:"slug"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
}

// Chain is a named, ordered sequence of Links.
type Chain struct {
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	LinkCount int    `json:"link_count"`
}

// Artifact is a content-addressed file reference with optional extracted text.
type Artifact struct {
	ID            string `json:"id"`
	FilePath      string `json:"file_path"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ExtractedText string `json:"extracted_text,omitempty"`
	MimeHint      string `json:"mime_hint,omitempty"`
	SizeBytes     int64  `json:"size_bytes"`
	CreatedAt     int64  `json:"created_at"`
}

// ResolveKind distinguishes what kind of entity an identifier resolves to.
type ResolveKind string

const (
	KindChainLink ResolveKind = "chain_link"
	KindChain     ResolveKind = "chain"
	KindArtifact  ResolveKind = "artifact"
	KindSession   ResolveKind = "session"
)

// Resolved is the result of Store.Get, before pagination is applied.
type Resolved struct {
	Kind    ResolveKind `json:"kind"`
	Content string      `json:"content"`
}
