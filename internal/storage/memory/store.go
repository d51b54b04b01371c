// Package memory is an in-memory store used by tests and storage-less
// development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
)

// Store keeps all records in memory behind one mutex.
type Store struct {
	mu          sync.RWMutex
	documents   map[string]*storage.Document
	suggestions map[string]*storage.Suggestion
	events      []*audit.Event
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		documents:   make(map[string]*storage.Document),
		suggestions: make(map[string]*storage.Suggestion),
	}
}

func (s *Store) CreateDocument(_ context.Context, doc *storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (s *Store) ListDocuments(_ context.Context, opts storage.ListOptions) ([]*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []*storage.Document
	for _, doc := range s.documents {
		if opts.ActorID != "" && doc.UploadedBy != opts.ActorID {
			continue
		}
		copied := *doc
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return paginate(docs, opts), nil
}

func (s *Store) SetDocumentStatus(_ context.Context, id string, status storage.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateSuggestion(_ context.Context, sg *storage.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg.ID == "" {
		sg.ID = uuid.New().String()
	}
	if sg.ApprovalStatus == "" {
		sg.ApprovalStatus = storage.ApprovalPending
	}
	sg.CreatedAt = time.Now().UTC()
	sg.UpdatedAt = sg.CreatedAt
	copied := *sg
	s.suggestions[sg.ID] = &copied
	return nil
}

func (s *Store) GetSuggestion(_ context.Context, id string) (*storage.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, storage.ErrNotFound)
	}
	copied := *sg
	return &copied, nil
}

func (s *Store) ListSuggestionsByDocument(_ context.Context, documentID string) ([]*storage.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.Suggestion
	for _, sg := range s.suggestions {
		if sg.DocumentID == documentID {
			copied := *sg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetApproval(_ context.Context, id string, status storage.ApprovalStatus, approvedBy, notes string) (*storage.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, storage.ErrNotFound)
	}
	now := time.Now().UTC()
	sg.ApprovalStatus = status
	sg.ApprovedBy = approvedBy
	sg.ApprovedAt = &now
	if notes != "" {
		sg.Notes = notes
	}
	sg.UpdatedAt = now
	copied := *sg
	return &copied, nil
}

func (s *Store) Record(_ context.Context, ev *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) ListAudit(_ context.Context, opts storage.ListOptions) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if opts.DocumentID != "" && ev.DocumentID != opts.DocumentID {
			continue
		}
		if opts.ActorID != "" && ev.ActorID != opts.ActorID {
			continue
		}
		out = append(out, ev)
	}
	return paginate(out, opts), nil
}

func (s *Store) Close() error {
	return nil
}

func paginate[T any](items []T, opts storage.ListOptions) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
