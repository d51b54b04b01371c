package docpipe

import (
	"context"
	"log/slog"

	"github.com/ledgerpipe/ledgerpipe/internal/pipeline"
	"github.com/ledgerpipe/ledgerpipe/internal/storage"
)

// Processor runs the default pipeline for one uploaded document and owns
// the terminal-state duty: a failed run leaves the document in status
// error before the failure propagates.
type Processor struct {
	deps     Deps
	executor *pipeline.Executor
	logger   *slog.Logger
}

// NewProcessor creates a processor over the given collaborators.
func NewProcessor(deps Deps, executor *pipeline.Executor, logger *slog.Logger) *Processor {
	return &Processor{deps: deps, executor: executor, logger: logger}
}

// Process runs the document_uploaded pipeline for the document. The run
// is synchronous; it returns once all steps completed or the first one
// failed.
func (p *Processor) Process(ctx context.Context, documentID, actorID string) (pipeline.Context, error) {
	doc, err := p.deps.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	initial := pipeline.Context{
		FieldDocumentID: doc.ID,
		FieldLocation:   doc.Location,
		FieldMediaType:  doc.MediaType,
	}

	final, err := p.executor.Execute(ctx, pipeline.Run{
		Trigger:   TriggerDocumentUploaded,
		Context:   initial,
		Steps:     DefaultSteps(p.deps),
		ActorID:   actorID,
		SubjectID: doc.ID,
	})
	if err != nil {
		if serr := p.deps.Documents.SetDocumentStatus(ctx, documentID, storage.StatusError); serr != nil {
			p.logger.Error("failed to mark document as errored",
				slog.String("document_id", documentID),
				slog.String("error", serr.Error()),
			)
		}
		return final, err
	}
	return final, nil
}
