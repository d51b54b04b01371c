// Package sqlite is the SQLite-backed implementation of the store
// interfaces, using the pure-Go driver so no cgo is required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and bootstraps the schema.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			location TEXT NOT NULL,
			size INTEGER NOT NULL,
			media_type TEXT NOT NULL,
			uploaded_by TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS suggestions (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			account_number TEXT,
			vat_code TEXT,
			confidence_score REAL NOT NULL,
			risk_level TEXT NOT NULL,
			approval_status TEXT NOT NULL,
			approved_by TEXT,
			approved_at TIMESTAMP,
			notes TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			actor_id TEXT,
			document_id TEXT,
			trigger_name TEXT,
			step TEXT,
			input_keys TEXT,
			output_keys TEXT,
			success INTEGER NOT NULL,
			duration_ms REAL,
			error TEXT,
			raw_ocr_output TEXT,
			ai_prompt TEXT,
			ai_response TEXT,
			metadata TEXT,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_document ON suggestions(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_events(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_events(actor_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *storage.Document) error {
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt

	query := `INSERT INTO documents (id, filename, location, size, media_type, uploaded_by, status, created_at, updated_at)
	          VALUES (:id, :filename, :location, :size, :media_type, :uploaded_by, :status, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*storage.Document, error) {
	var doc storage.Document
	err := s.db.GetContext(ctx, &doc, `SELECT * FROM documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, opts storage.ListOptions) ([]*storage.Document, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	var docs []*storage.Document
	var err error
	if opts.ActorID != "" {
		err = s.db.SelectContext(ctx, &docs,
			`SELECT * FROM documents WHERE uploaded_by = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			opts.ActorID, limit, opts.Offset)
	} else {
		err = s.db.SelectContext(ctx, &docs,
			`SELECT * FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			limit, opts.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *Store) SetDocumentStatus(ctx context.Context, id string, status storage.DocumentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateSuggestion(ctx context.Context, sg *storage.Suggestion) error {
	if sg.ID == "" {
		sg.ID = uuid.New().String()
	}
	if sg.ApprovalStatus == "" {
		sg.ApprovalStatus = storage.ApprovalPending
	}
	sg.CreatedAt = time.Now().UTC()
	sg.UpdatedAt = sg.CreatedAt

	query := `INSERT INTO suggestions (id, document_id, account_number, vat_code, confidence_score, risk_level, approval_status, approved_by, approved_at, notes, created_at, updated_at)
	          VALUES (:id, :document_id, :account_number, :vat_code, :confidence_score, :risk_level, :approval_status, :approved_by, :approved_at, :notes, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, query, sg); err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	return nil
}

func (s *Store) GetSuggestion(ctx context.Context, id string) (*storage.Suggestion, error) {
	var sg storage.Suggestion
	err := s.db.GetContext(ctx, &sg, `SELECT * FROM suggestions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	return &sg, nil
}

func (s *Store) ListSuggestionsByDocument(ctx context.Context, documentID string) ([]*storage.Suggestion, error) {
	var suggestions []*storage.Suggestion
	err := s.db.SelectContext(ctx, &suggestions,
		`SELECT * FROM suggestions WHERE document_id = ? ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return suggestions, nil
}

func (s *Store) SetApproval(ctx context.Context, id string, status storage.ApprovalStatus, approvedBy, notes string) (*storage.Suggestion, error) {
	now := time.Now().UTC()
	var result sql.Result
	var err error
	if notes != "" {
		result, err = s.db.ExecContext(ctx,
			`UPDATE suggestions SET approval_status = ?, approved_by = ?, approved_at = ?, notes = ?, updated_at = ? WHERE id = ?`,
			status, approvedBy, now, notes, now, id)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE suggestions SET approval_status = ?, approved_by = ?, approved_at = ?, updated_at = ? WHERE id = ?`,
			status, approvedBy, now, now, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update approval: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("suggestion %s: %w", id, storage.ErrNotFound)
	}
	return s.GetSuggestion(ctx, id)
}

// Record appends one audit event. There is no corresponding update or
// delete; the table is the compliance trail.
func (s *Store) Record(ctx context.Context, ev *audit.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	inputKeys, err := json.Marshal(ev.InputKeys)
	if err != nil {
		return fmt.Errorf("failed to marshal input keys: %w", err)
	}
	outputKeys, err := json.Marshal(ev.OutputKeys)
	if err != nil {
		return fmt.Errorf("failed to marshal output keys: %w", err)
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO audit_events (id, action, actor_id, document_id, trigger_name, step, input_keys, output_keys, success, duration_ms, error, raw_ocr_output, ai_prompt, ai_response, metadata, ip_address, user_agent, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.Action, ev.ActorID, ev.DocumentID, ev.Trigger, ev.Step,
		string(inputKeys), string(outputKeys), ev.Success, ev.DurationMS,
		ev.Error, ev.RawOCR, ev.AIPrompt, ev.AIResponse, string(metadata),
		ev.IPAddress, ev.UserAgent, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, opts storage.ListOptions) ([]*audit.Event, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	query := `SELECT id, action, actor_id, document_id, trigger_name, step, input_keys, output_keys, success, duration_ms, error, raw_ocr_output, ai_prompt, ai_response, metadata, ip_address, user_agent, created_at
	          FROM audit_events`
	args := []any{}
	switch {
	case opts.DocumentID != "" && opts.ActorID != "":
		query += ` WHERE document_id = ? AND actor_id = ?`
		args = append(args, opts.DocumentID, opts.ActorID)
	case opts.DocumentID != "":
		query += ` WHERE document_id = ?`
		args = append(args, opts.DocumentID)
	case opts.ActorID != "":
		query += ` WHERE actor_id = ?`
		args = append(args, opts.ActorID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var ev audit.Event
		var inputKeys, outputKeys, metadata sql.NullString
		var actor, document, trigger, step, errMsg, rawOCR, aiPrompt, aiResponse, ip, ua sql.NullString
		var duration sql.NullFloat64

		if err := rows.Scan(&ev.ID, &ev.Action, &actor, &document, &trigger, &step,
			&inputKeys, &outputKeys, &ev.Success, &duration, &errMsg,
			&rawOCR, &aiPrompt, &aiResponse, &metadata, &ip, &ua, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		ev.ActorID = actor.String
		ev.DocumentID = document.String
		ev.Trigger = trigger.String
		ev.Step = step.String
		ev.DurationMS = duration.Float64
		ev.Error = errMsg.String
		ev.RawOCR = rawOCR.String
		ev.AIPrompt = aiPrompt.String
		ev.AIResponse = aiResponse.String
		ev.IPAddress = ip.String
		ev.UserAgent = ua.String

		if inputKeys.Valid && inputKeys.String != "" {
			if err := json.Unmarshal([]byte(inputKeys.String), &ev.InputKeys); err != nil {
				return nil, fmt.Errorf("failed to unmarshal input keys: %w", err)
			}
		}
		if outputKeys.Valid && outputKeys.String != "" {
			if err := json.Unmarshal([]byte(outputKeys.String), &ev.OutputKeys); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output keys: %w", err)
			}
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
