package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/auth"
	"github.com/ledgerpipe/ledgerpipe/internal/pipeline"
	"github.com/ledgerpipe/ledgerpipe/internal/rules"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
	"github.com/ledgerpipe/ledgerpipe/internal/storage/memory"
)

// fakeRunner stands in for the document processor: it marks documents
// complete and writes one suggestion, or fails with a fixed error.
type fakeRunner struct {
	store *memory.Store
	err   error
	calls []string
}

func (f *fakeRunner) Process(ctx context.Context, documentID, actorID string) (pipeline.Context, error) {
	f.calls = append(f.calls, documentID)
	if f.err != nil {
		f.store.SetDocumentStatus(ctx, documentID, storage.StatusError)
		return nil, f.err
	}
	f.store.CreateSuggestion(ctx, &storage.Suggestion{
		DocumentID:      documentID,
		AccountNumber:   "4010",
		VATCode:         "2",
		ConfidenceScore: 0.92,
		RiskLevel:       rules.RiskLow,
		ApprovalStatus:  storage.ApprovalPending,
	})
	f.store.SetDocumentStatus(ctx, documentID, storage.StatusComplete)
	return pipeline.Context{}, nil
}

type testServer struct {
	srv    *Server
	store  *memory.Store
	runner *fakeRunner
	dir    string
}

func newTestServer(t *testing.T, processErr error) *testServer {
	t.Helper()
	store := memory.New()
	runner := &fakeRunner{store: store, err: processErr}
	dir := t.TempDir()

	api := NewAPI(store, runner, UploadPolicy{
		Dir:               dir,
		MaxSizeBytes:      1 << 20,
		AllowedExtensions: []string{".pdf", ".png"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	authenticator := auth.NewAuthenticator([]auth.APIKey{
		{KeyHash: auth.HashAPIKey("test-key"), Name: "accountant-1"},
	})

	srv := New(0, 30*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), authenticator, api)
	return &testServer{srv: srv, store: store, runner: runner, dir: dir}
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer test-key")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.srv.Router.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadInvoice(t *testing.T) {
	ts := newTestServer(t, nil)
	body, contentType := multipartBody(t, "invoice.pdf", []byte("%PDF-1.4 fake"))

	rec := ts.do(t, "POST", "/v1/invoices", contentType, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.ProcessingError)
	require.Equal(t, storage.StatusComplete, resp.Document.Status)
	require.Equal(t, "invoice.pdf", resp.Document.Filename)
	require.Equal(t, "application/pdf", resp.Document.MediaType)
	require.Equal(t, "accountant-1", resp.Document.UploadedBy)
	require.Len(t, resp.Suggestions, 1)
	require.Equal(t, "4010", resp.Suggestions[0].AccountNumber)

	// The file landed in the uploads dir under the document id.
	saved := filepath.Join(ts.dir, resp.Document.ID+".pdf")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 fake"), data)

	// One upload event with request metadata.
	events, err := ts.store.ListAudit(context.Background(), storage.ListOptions{DocumentID: resp.Document.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionUpload, events[0].Action)
	require.Equal(t, "accountant-1", events[0].ActorID)
	require.NotEmpty(t, events[0].IPAddress)

	require.Equal(t, []string{resp.Document.ID}, ts.runner.calls)
}

func TestUploadInvoice_UnsupportedExtension(t *testing.T) {
	ts := newTestServer(t, nil)
	body, contentType := multipartBody(t, "invoice.exe", []byte("nope"))

	rec := ts.do(t, "POST", "/v1/invoices", contentType, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, ts.runner.calls)
}

func TestUploadInvoice_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("other", "value"))
	require.NoError(t, w.Close())

	rec := ts.do(t, "POST", "/v1/invoices", w.FormDataContentType(), &buf)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadInvoice_ProcessingFailure(t *testing.T) {
	ts := newTestServer(t, errors.New("provider unavailable"))
	body, contentType := multipartBody(t, "invoice.pdf", []byte("%PDF-1.4 fake"))

	rec := ts.do(t, "POST", "/v1/invoices", contentType, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.ProcessingError, "provider unavailable")
	require.Equal(t, storage.StatusError, resp.Document.Status)
	require.Empty(t, resp.Suggestions)
}

func TestUploadInvoice_Unauthorized(t *testing.T) {
	ts := newTestServer(t, nil)
	body, contentType := multipartBody(t, "invoice.pdf", []byte("x"))

	req := httptest.NewRequest("POST", "/v1/invoices", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.srv.Router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetInvoice(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.store.CreateDocument(context.Background(), &storage.Document{
		ID: "doc-1", Filename: "a.pdf", Status: storage.StatusComplete,
	}))

	rec := ts.do(t, "GET", "/v1/invoices/doc-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "doc-1", resp.Document.ID)
	require.NotNil(t, resp.Suggestions)
}

func TestGetInvoice_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "GET", "/v1/invoices/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInvoices(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, ts.store.CreateDocument(ctx, &storage.Document{ID: "a", Status: storage.StatusUploaded}))
	require.NoError(t, ts.store.CreateDocument(ctx, &storage.Document{ID: "b", Status: storage.StatusComplete}))

	rec := ts.do(t, "GET", "/v1/invoices", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []*storage.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 2)
}

func TestApproveSuggestion(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	sg := &storage.Suggestion{ID: "sg-1", DocumentID: "doc-1", AccountNumber: "4010"}
	require.NoError(t, ts.store.CreateSuggestion(ctx, sg))

	body := bytes.NewBufferString(`{"status": "approved", "notes": "looks right"}`)
	rec := ts.do(t, "POST", "/v1/suggestions/sg-1/approve", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got storage.Suggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, storage.ApprovalApproved, got.ApprovalStatus)
	require.Equal(t, "accountant-1", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	require.Equal(t, "looks right", got.Notes)

	events, err := ts.store.ListAudit(ctx, storage.ListOptions{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionApprove, events[0].Action)
}

func TestRejectSuggestion(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, ts.store.CreateSuggestion(ctx, &storage.Suggestion{ID: "sg-1", DocumentID: "doc-1"}))

	body := bytes.NewBufferString(`{"status": "rejected"}`)
	rec := ts.do(t, "POST", "/v1/suggestions/sg-1/approve", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := ts.store.ListAudit(ctx, storage.ListOptions{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionReject, events[0].Action)
}

func TestApproveSuggestion_BadStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	require.NoError(t, ts.store.CreateSuggestion(context.Background(), &storage.Suggestion{ID: "sg-1"}))

	body := bytes.NewBufferString(`{"status": "maybe"}`)
	rec := ts.do(t, "POST", "/v1/suggestions/sg-1/approve", "application/json", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveSuggestion_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	body := bytes.NewBufferString(`{"status": "approved"}`)
	rec := ts.do(t, "POST", "/v1/suggestions/missing/approve", "application/json", body)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAudit_FilterByDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, ts.store.Record(ctx, &audit.Event{Action: audit.ActionUpload, DocumentID: "doc-1"}))
	require.NoError(t, ts.store.Record(ctx, &audit.Event{Action: audit.ActionUpload, DocumentID: "doc-2"}))

	rec := ts.do(t, "GET", "/v1/audit?document_id=doc-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []*audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	require.Equal(t, "doc-1", resp.Events[0].DocumentID)
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	ts.srv.Router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}
