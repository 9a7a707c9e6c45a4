package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Importance is the ordinal weight attached to stored content.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

var importanceRank = map[Importance]int{
	ImportanceLow:      1,
	ImportanceMedium:   2,
	ImportanceHigh:     3,
	ImportanceCritical: 4,
}

func (i Importance) IsValid() bool {
	_, ok := importanceRank[i]
	return ok
}

// Rank returns the ordinal position of i, or 0 for an unknown value.
func (i Importance) Rank() int {
	return importanceRank[i]
}

// AtLeast reports whether i ranks at or above min.
func (i Importance) AtLeast(min Importance) bool {
	return i.Rank() >= min.Rank()
}

// ImportanceAtLeast lists every importance value ranking at or above min.
func ImportanceAtLeast(min Importance) []Importance {
	var out []Importance
	for _, i := range []Importance{ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical} {
		if i.AtLeast(min) {
			out = append(out, i)
		}
	}
	return out
}

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ContentType returns the fingerprint content type for messages of this role.
func (r Role) ContentType() string {
	if r == RoleAssistant {
		return ContentTypeAssistantMessage
	}
	return ContentTypeUserMessage
}

// FileAction is the last thing that happened to an ActiveFile.
type FileAction string

const (
	FileActionOpen   FileAction = "open"
	FileActionEdit   FileAction = "edit"
	FileActionCreate FileAction = "create"
	FileActionClose  FileAction = "close"
)

func (a FileAction) IsValid() bool {
	switch a {
	case FileActionOpen, FileActionEdit, FileActionCreate, FileActionClose:
		return true
	}
	return false
}

// Fingerprint content types. Any other string is accepted as an opaque tag.
const (
	ContentTypeUserMessage      = "user_message"
	ContentTypeAssistantMessage = "assistant_message"
	ContentTypeActiveFile       = "active_file"
	ContentTypeMilestone        = "milestone"
	ContentTypeDecision         = "decision"
	ContentTypeRequirement      = "requirement"
	ContentTypeEpisode          = "episode"
	ContentTypeCodeFile         = "code_file"
	ContentTypeCodeSnippet      = "code_snippet"
)

// Metadata is free-form JSON attached to records. It is stored as TEXT.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	*m = out
	return nil
}

// --- Request types ---

type StoreMessageRequest struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Importance Importance `json:"importance,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

type TrackFileRequest struct {
	Filename   string     `json:"filename"`
	Action     FileAction `json:"action"`
	Importance Importance `json:"importance,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

type MilestoneRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance,omitempty"`
	Metadata    Metadata   `json:"metadata,omitempty"`
}

type DecisionRequest struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Importance Importance `json:"importance,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

type RequirementRequest struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Importance Importance `json:"importance,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

type EpisodeRequest struct {
	Actor      string     `json:"actor"`
	Action     string     `json:"action"`
	Content    string     `json:"content"`
	Context    string     `json:"context,omitempty"`
	Importance Importance `json:"importance,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
}

type StoreVectorRequest struct {
	ContentID   string    `json:"contentId"`
	ContentType string    `json:"contentType"`
	Vector      []float32 `json:"vector"`
	Metadata    Metadata  `json:"metadata,omitempty"`
}

type SearchVectorsRequest struct {
	Vector      []float32 `json:"vector"`
	ContentType string    `json:"contentType,omitempty"`
	Limit       int       `json:"limit,omitempty"`
	Threshold   *float64  `json:"threshold,omitempty"`
}

type UpdateVectorRequest struct {
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata,omitempty"`
}

// --- Response types ---

type VectorStored struct {
	ID          int64  `json:"id"`
	ContentID   string `json:"contentId"`
	ContentType string `json:"contentType"`
	Dimensions  int    `json:"dimensions"`
	Timestamp   string `json:"timestamp"`
}

type VectorMatch struct {
	ID          int64    `json:"id"`
	ContentID   string   `json:"contentId"`
	ContentType string   `json:"contentType"`
	Similarity  float64  `json:"similarity"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

type VectorUpdated struct {
	ID         int64  `json:"id"`
	Dimensions int    `json:"dimensions"`
	Updated    bool   `json:"updated"`
	Timestamp  string `json:"timestamp"`
}

type VectorDeleted struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

type MaintenanceReport struct {
	DetachedFilesRemoved int64    `json:"detachedFilesRemoved"`
	OrphansRemoved       int64    `json:"orphansRemoved"`
	DuplicatesCollapsed  int64    `json:"duplicatesCollapsed"`
	IndexRebuilt         bool     `json:"indexRebuilt"`
	IndexedVectors       int      `json:"indexedVectors"`
	Errors               []string `json:"errors,omitempty"`
	Timestamp            string   `json:"timestamp"`
}

type IndexFileResponse struct {
	TaskID   string `json:"taskId"`
	Path     string `json:"path"`
	Language string `json:"language"`
}

type HealthResponse struct {
	Status       string       `json:"status"`
	DB           ServiceCheck `json:"db"`
	Index        ServiceCheck `json:"index"`
	Embedding    ServiceCheck `json:"embedding"`
	Queue        QueueStats   `json:"queue"`
	Fingerprints int          `json:"fingerprints"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type QueueStats struct {
	Pending   int   `json:"pending"`
	Busy      bool  `json:"busy"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}
