// Package docpipe wires the invoice processing pipeline: the four
// capability-scoped steps and the processor that runs them for one
// document.
package docpipe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
	"github.com/ledgerpipe/ledgerpipe/internal/classify"
	"github.com/ledgerpipe/ledgerpipe/internal/extract"
	"github.com/ledgerpipe/ledgerpipe/internal/pipeline"
	"github.com/ledgerpipe/ledgerpipe/internal/rules"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
)

// TriggerDocumentUploaded starts the default pipeline for a fresh upload.
const TriggerDocumentUploaded = "document_uploaded"

// Context field names shared by the steps' dataflow contracts.
const (
	FieldDocumentID      = "document_id"
	FieldLocation        = "location"
	FieldMediaType       = "media_type"
	FieldExtractedText   = "extracted_text"
	FieldClassification  = "classification_result"
	FieldRiskLevel       = "risk_level"
	FieldConfidenceScore = "confidence_score"
	FieldNotes           = "notes"
)

// Classifier is the AI collaborator consumed by the classify step.
type Classifier interface {
	Suggest(ctx context.Context, ocrText string) (*classify.Result, classify.PromptStats, error)
	PromptForAudit(ocrText string) string
}

// Deps are the external collaborators the concrete steps delegate to.
type Deps struct {
	Documents   storage.DocumentStore
	Suggestions storage.SuggestionStore
	Audit       audit.Sink
	Extractor   extract.Extractor
	Classifier  Classifier
}

// DefaultSteps returns the fixed step list for the document_uploaded
// trigger: extract → classify → score → persist.
func DefaultSteps(d Deps) []pipeline.Step {
	return []pipeline.Step{
		d.extractStep(),
		d.classifyStep(),
		scoreStep(),
		d.persistStep(),
	}
}

func requireField[T any](in pipeline.Context, key string) (T, error) {
	v, ok := pipeline.Value[T](in, key)
	if !ok {
		return v, fmt.Errorf("missing required field %s", key)
	}
	return v, nil
}

func (d Deps) extractStep() pipeline.StepDef {
	return pipeline.NewStep("extract",
		[]string{FieldDocumentID, FieldLocation, FieldMediaType},
		[]string{FieldExtractedText},
		false,
		func(ctx context.Context, in pipeline.Context) (pipeline.Context, error) {
			docID, err := requireField[string](in, FieldDocumentID)
			if err != nil {
				return nil, err
			}
			location, err := requireField[string](in, FieldLocation)
			if err != nil {
				return nil, err
			}
			mediaType, err := requireField[string](in, FieldMediaType)
			if err != nil {
				return nil, err
			}

			if err := d.Documents.SetDocumentStatus(ctx, docID, storage.StatusProcessing); err != nil {
				return nil, err
			}

			text, err := d.Extractor.Extract(ctx, location, mediaType)
			if err != nil {
				return nil, err
			}

			if err := d.Audit.Record(ctx, &audit.Event{
				Action:     audit.ActionOCRComplete,
				DocumentID: docID,
				RawOCR:     text,
				Success:    true,
			}); err != nil {
				return nil, err
			}

			if err := d.Documents.SetDocumentStatus(ctx, docID, storage.StatusOCRComplete); err != nil {
				return nil, err
			}
			return pipeline.Context{FieldExtractedText: text}, nil
		})
}

func (d Deps) classifyStep() pipeline.StepDef {
	return pipeline.NewStep("classify",
		[]string{FieldExtractedText, FieldDocumentID},
		[]string{FieldClassification},
		true,
		func(ctx context.Context, in pipeline.Context) (pipeline.Context, error) {
			text, err := requireField[string](in, FieldExtractedText)
			if err != nil {
				return nil, err
			}
			// The document id is declared but optional: when absent, all
			// document bookkeeping (status, audit) is skipped and only the
			// classification result is produced.
			docID, hasDoc := pipeline.Value[string](in, FieldDocumentID)

			if hasDoc {
				if err := d.Documents.SetDocumentStatus(ctx, docID, storage.StatusAIProcessing); err != nil {
					return nil, err
				}
			}

			result, stats, err := d.Classifier.Suggest(ctx, text)
			if err != nil {
				return nil, err
			}

			if hasDoc {
				response, merr := json.Marshal(result)
				if merr != nil {
					return nil, fmt.Errorf("failed to marshal suggestion: %w", merr)
				}
				if err := d.Audit.Record(ctx, &audit.Event{
					Action:     audit.ActionAISuggestion,
					DocumentID: docID,
					AIPrompt:   d.Classifier.PromptForAudit(text),
					AIResponse: string(response),
					Success:    true,
					Metadata: map[string]any{
						"prompt_tokens": stats.Tokens,
						"truncated":     stats.Truncated,
					},
				}); err != nil {
					return nil, err
				}
			}
			return pipeline.Context{FieldClassification: result}, nil
		})
}

// scoreStep is a pure function of the classification result; it takes no
// collaborators and performs no I/O.
func scoreStep() pipeline.StepDef {
	return pipeline.NewStep("score",
		[]string{FieldClassification},
		[]string{FieldRiskLevel, FieldConfidenceScore, FieldNotes},
		false,
		func(_ context.Context, in pipeline.Context) (pipeline.Context, error) {
			result, err := requireField[*classify.Result](in, FieldClassification)
			if err != nil {
				return nil, err
			}

			confidence := rules.FinalConfidence(result.Confidence, result.AccountNumber, result.VATCode)
			risk := rules.RiskFor(result.AccountNumber, result.VATCode, confidence)

			return pipeline.Context{
				FieldRiskLevel:       risk,
				FieldConfidenceScore: confidence,
				FieldNotes:           result.Reasoning,
			}, nil
		})
}

func (d Deps) persistStep() pipeline.StepDef {
	// Zero declared outputs: terminal step, context unchanged.
	return pipeline.NewStep("persist",
		[]string{FieldDocumentID, FieldClassification, FieldRiskLevel, FieldConfidenceScore, FieldNotes},
		[]string{},
		false,
		func(ctx context.Context, in pipeline.Context) (pipeline.Context, error) {
			docID, err := requireField[string](in, FieldDocumentID)
			if err != nil {
				return nil, err
			}
			result, err := requireField[*classify.Result](in, FieldClassification)
			if err != nil {
				return nil, err
			}
			risk, err := requireField[rules.RiskLevel](in, FieldRiskLevel)
			if err != nil {
				return nil, err
			}
			confidence, err := requireField[float64](in, FieldConfidenceScore)
			if err != nil {
				return nil, err
			}
			notes, _ := pipeline.Value[string](in, FieldNotes)

			suggestion := &storage.Suggestion{
				DocumentID:      docID,
				AccountNumber:   result.AccountNumber,
				VATCode:         result.VATCode,
				ConfidenceScore: confidence,
				RiskLevel:       risk,
				ApprovalStatus:  storage.ApprovalPending,
				Notes:           notes,
			}
			if err := d.Suggestions.CreateSuggestion(ctx, suggestion); err != nil {
				return nil, err
			}

			if err := d.Documents.SetDocumentStatus(ctx, docID, storage.StatusComplete); err != nil {
				return nil, err
			}
			return pipeline.Context{}, nil
		})
}
