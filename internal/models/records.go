package models

import "time"

// Message is a single conversation turn.
type Message struct {
	ID         int64      `db:"id" json:"id"`
	Role       Role       `db:"role" json:"role"`
	Content    string     `db:"content" json:"content"`
	Importance Importance `db:"importance" json:"importance"`
	Metadata   Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// ActiveFile tracks the most recent action taken on a file by filename.
type ActiveFile struct {
	ID           int64      `db:"id" json:"id"`
	Filename     string     `db:"filename" json:"filename"`
	Action       FileAction `db:"action" json:"action"`
	Importance   Importance `db:"importance" json:"importance"`
	Metadata     Metadata   `db:"metadata" json:"metadata,omitempty"`
	LastAccessed time.Time  `db:"last_accessed" json:"lastAccessed"`
}

// Milestone records a notable point of progress in the project.
type Milestone struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Importance  Importance `db:"importance" json:"importance"`
	Metadata    Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// Decision records a project decision and the reasoning behind it.
type Decision struct {
	ID         int64      `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Content    string     `db:"content" json:"content"`
	Reasoning  string     `db:"reasoning" json:"reasoning,omitempty"`
	Importance Importance `db:"importance" json:"importance"`
	Metadata   Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Requirement records something the project must satisfy.
type Requirement struct {
	ID         int64      `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Content    string     `db:"content" json:"content"`
	Importance Importance `db:"importance" json:"importance"`
	Metadata   Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// Episode is one entry of the chronological activity log.
type Episode struct {
	ID         int64      `db:"id" json:"id"`
	Actor      string     `db:"actor" json:"actor"`
	Action     string     `db:"action" json:"action"`
	Content    string     `db:"content" json:"content"`
	Context    string     `db:"context" json:"context,omitempty"`
	Importance Importance `db:"importance" json:"importance"`
	Metadata   Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// CodeFile is an indexed source file, keyed by path.
type CodeFile struct {
	ID          int64     `db:"id" json:"id"`
	Path        string    `db:"path" json:"path"`
	Language    string    `db:"language" json:"language"`
	Size        int64     `db:"size" json:"size"`
	LastIndexed time.Time `db:"last_indexed" json:"lastIndexed"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// CodeSnippet is a symbol block extracted from a CodeFile.
type CodeSnippet struct {
	ID         int64     `db:"id" json:"id"`
	FileID     int64     `db:"file_id" json:"fileId"`
	SymbolName string    `db:"symbol_name" json:"symbolName"`
	SymbolKind string    `db:"symbol_kind" json:"symbolKind"`
	StartLine  int       `db:"start_line" json:"startLine"`
	EndLine    int       `db:"end_line" json:"endLine"`
	Content    string    `db:"content" json:"content"`
	Language   string    `db:"language" json:"language"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// SnippetWithPath is a CodeSnippet joined with its owning file's path.
type SnippetWithPath struct {
	CodeSnippet
	FilePath string `db:"file_path" json:"filePath"`
}

// Fingerprint is a stored vector derived from exactly one piece of content.
// Vector holds little-endian float32 values; it is decoded only when a
// similarity is computed.
type Fingerprint struct {
	ID          int64     `db:"id" json:"id"`
	ContentID   string    `db:"content_id" json:"contentId"`
	ContentType string    `db:"content_type" json:"contentType"`
	Vector      []byte    `db:"vector" json:"-"`
	Dimensions  int       `db:"dimensions" json:"dimensions"`
	Metadata    Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
