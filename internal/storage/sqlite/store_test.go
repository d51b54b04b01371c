package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/rules"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDocumentLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &storage.Document{
		ID:         "doc-1",
		Filename:   "invoice.pdf",
		Location:   "/tmp/uploads/doc-1.pdf",
		Size:       1024,
		MediaType:  "application/pdf",
		UploadedBy: "user-1",
		Status:     storage.StatusUploaded,
	}
	require.NoError(t, store.CreateDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "invoice.pdf", got.Filename)
	require.Equal(t, storage.StatusUploaded, got.Status)

	require.NoError(t, store.SetDocumentStatus(ctx, "doc-1", storage.StatusComplete))
	got, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, storage.StatusComplete, got.Status)

	docs, err := store.ListDocuments(ctx, storage.ListOptions{ActorID: "user-1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestDocumentNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = store.SetDocumentStatus(ctx, "missing", storage.StatusError)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSuggestionApproval(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &storage.Document{ID: "doc-1", Filename: "a.png", Location: "/a.png", MediaType: "image/png", UploadedBy: "u", Status: storage.StatusComplete}
	require.NoError(t, store.CreateDocument(ctx, doc))

	sg := &storage.Suggestion{
		DocumentID:      "doc-1",
		AccountNumber:   "4010",
		VATCode:         "2",
		ConfidenceScore: 0.95,
		RiskLevel:       rules.RiskLow,
		Notes:           "office supplies",
	}
	require.NoError(t, store.CreateSuggestion(ctx, sg))
	require.NotEmpty(t, sg.ID)

	got, err := store.GetSuggestion(ctx, sg.ID)
	require.NoError(t, err)
	require.Equal(t, storage.ApprovalPending, got.ApprovalStatus)

	updated, err := store.SetApproval(ctx, sg.ID, storage.ApprovalApproved, "reviewer-1", "looks right")
	require.NoError(t, err)
	require.Equal(t, storage.ApprovalApproved, updated.ApprovalStatus)
	require.Equal(t, "reviewer-1", updated.ApprovedBy)
	require.NotNil(t, updated.ApprovedAt)
	require.Equal(t, "looks right", updated.Notes)

	list, err := store.ListSuggestionsByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAuditAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events := []*audit.Event{
		{Action: audit.ActionUpload, ActorID: "user-1", DocumentID: "doc-1", Success: true},
		{
			Action:     audit.ActionWorkflowStep,
			DocumentID: "doc-1",
			Trigger:    "document_uploaded",
			Step:       "extract",
			InputKeys:  []string{"document_id", "location", "media_type"},
			OutputKeys: []string{"extracted_text"},
			Success:    true,
			DurationMS: 12.5,
			Metadata:   map[string]any{"external": false},
		},
		{Action: audit.ActionWorkflowStep, DocumentID: "doc-2", Step: "classify", Success: false, Error: "malformed response"},
	}
	for _, ev := range events {
		require.NoError(t, store.Record(ctx, ev))
		require.NotEmpty(t, ev.ID)
	}

	got, err := store.ListAudit(ctx, storage.ListOptions{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	var stepEvent *audit.Event
	for _, ev := range got {
		if ev.Step == "extract" {
			stepEvent = ev
		}
	}
	require.NotNil(t, stepEvent)
	require.Equal(t, []string{"document_id", "location", "media_type"}, stepEvent.InputKeys)
	require.Equal(t, []string{"extracted_text"}, stepEvent.OutputKeys)
	require.Equal(t, 12.5, stepEvent.DurationMS)
	require.Equal(t, false, stepEvent.Metadata["external"])

	failed, err := store.ListAudit(ctx, storage.ListOptions{DocumentID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.False(t, failed[0].Success)
	require.Equal(t, "malformed response", failed[0].Error)
}

func TestAuditIsAppendOnly(t *testing.T) {
	// The store exposes no way to mutate recorded events; the closest a
	// caller could get is re-recording with the same ID, which must fail
	// on the primary key.
	store := newTestStore(t)
	ctx := context.Background()

	ev := &audit.Event{Action: audit.ActionUpload, DocumentID: "doc-1", Success: true}
	require.NoError(t, store.Record(ctx, ev))

	dup := &audit.Event{ID: ev.ID, Action: audit.ActionUpload, DocumentID: "doc-1"}
	err := store.Record(ctx, dup)
	require.Error(t, err)
	require.False(t, errors.Is(err, storage.ErrNotFound))
}
