// Package storage defines the persisted records and the store interfaces
// implemented by the SQLite and in-memory backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/rules"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStatus tracks a document through the processing pipeline.
type DocumentStatus string

const (
	StatusUploaded     DocumentStatus = "uploaded"
	StatusProcessing   DocumentStatus = "processing"
	StatusOCRComplete  DocumentStatus = "ocr_complete"
	StatusAIProcessing DocumentStatus = "ai_processing"
	StatusComplete     DocumentStatus = "complete"
	StatusError        DocumentStatus = "error"
)

// ApprovalStatus tracks the review state of a suggestion.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Document is one uploaded invoice.
type Document struct {
	ID         string         `db:"id" json:"id"`
	Filename   string         `db:"filename" json:"filename"`
	Location   string         `db:"location" json:"-"`
	Size       int64          `db:"size" json:"size"`
	MediaType  string         `db:"media_type" json:"media_type"`
	UploadedBy string         `db:"uploaded_by" json:"uploaded_by"`
	Status     DocumentStatus `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// Suggestion is the accounting suggestion produced for a document.
type Suggestion struct {
	ID              string          `db:"id" json:"id"`
	DocumentID      string          `db:"document_id" json:"document_id"`
	AccountNumber   string          `db:"account_number" json:"account_number"`
	VATCode         string          `db:"vat_code" json:"vat_code"`
	ConfidenceScore float64         `db:"confidence_score" json:"confidence_score"`
	RiskLevel       rules.RiskLevel `db:"risk_level" json:"risk_level"`
	ApprovalStatus  ApprovalStatus  `db:"approval_status" json:"approval_status"`
	ApprovedBy      string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ListOptions filters and paginates list queries.
type ListOptions struct {
	DocumentID string
	ActorID    string
	Limit      int
	Offset     int
}

// DocumentStore manages uploaded invoice records.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, opts ListOptions) ([]*Document, error)
	// SetDocumentStatus transitions a document's processing status. Each
	// call commits before returning.
	SetDocumentStatus(ctx context.Context, id string, status DocumentStatus) error
}

// SuggestionStore manages accounting suggestions and their approval flow.
type SuggestionStore interface {
	CreateSuggestion(ctx context.Context, s *Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*Suggestion, error)
	ListSuggestionsByDocument(ctx context.Context, documentID string) ([]*Suggestion, error)
	SetApproval(ctx context.Context, id string, status ApprovalStatus, approvedBy, notes string) (*Suggestion, error)
}

// AuditStore is the durable, append-only audit trail. It satisfies
// audit.Sink; there is deliberately no update or delete operation.
type AuditStore interface {
	Record(ctx context.Context, ev *audit.Event) error
	ListAudit(ctx context.Context, opts ListOptions) ([]*audit.Event, error)
}

// Store is the full persistence surface.
type Store interface {
	DocumentStore
	SuggestionStore
	AuditStore
	Close() error
}
