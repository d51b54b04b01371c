package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerpipe/ledgerpipe/internal/audit"
)

// Executor drives ordered step lists against a run context, enforcing
// field isolation and auditing every step execution.
type Executor struct {
	sink   audit.Sink
	tracer trace.Tracer
}

// NewExecutor creates an executor recording to the given sink.
func NewExecutor(sink audit.Sink) *Executor {
	return &Executor{
		sink:   sink,
		tracer: otel.Tracer("ledgerpipe/pipeline"),
	}
}

// Run describes one pipeline run: one context, one ordered step list, and
// the identities recorded on its audit events.
type Run struct {
	// Trigger names what started the run, e.g. "document_uploaded".
	Trigger string
	// Context is the initial field map. A nil context starts empty.
	Context Context
	// Steps execute strictly in order.
	Steps []Step
	// ActorID identifies who initiated the run.
	ActorID string
	// SubjectID identifies the document the run operates on.
	SubjectID string
}

// Execute runs the steps in order against the run context.
//
// Each step sees only its declared inputs and may write only its declared
// outputs. Exactly one audit event is recorded per step execution. The
// first failure aborts the run after its failure event is recorded; later
// steps never execute. The context is returned in both cases so the caller
// can inspect how far the run progressed.
func (e *Executor) Execute(ctx context.Context, run Run) (Context, error) {
	c := run.Context
	if c == nil {
		c = Context{}
	}
	for _, step := range run.Steps {
		if err := e.runStep(ctx, run, c, step); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (e *Executor) runStep(ctx context.Context, run Run, c Context, step Step) error {
	start := time.Now()
	present := c.PresentKeys(step.Inputs())

	sctx, span := e.tracer.Start(ctx, "pipeline.step",
		trace.WithAttributes(
			attribute.String("pipeline.trigger", run.Trigger),
			attribute.String("pipeline.step", step.Name()),
			attribute.Bool("pipeline.external", step.External()),
		))
	defer span.End()

	view := c.Restrict(step.Inputs())
	updates, err := step.Run(sctx, view)
	if err == nil {
		// A contract violation here counts as a step failure.
		err = c.MergeValidated(updates, step.Outputs(), step.Name())
	}
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		if !IsContractViolation(err) {
			err = &StepError{Step: step.Name(), Err: err}
		}
		// The failure event is recorded before the error propagates: the
		// trail must show the attempt even though the run aborts.
		if recErr := e.emit(sctx, run, step, present, nil, elapsed, err); recErr != nil {
			return errors.Join(err, recErr)
		}
		return err
	}

	return e.emit(sctx, run, step, present, updates.Keys(), elapsed, nil)
}

func (e *Executor) emit(ctx context.Context, run Run, step Step, inputKeys, outputKeys []string, elapsed time.Duration, stepErr error) error {
	ev := &audit.Event{
		Action:     audit.ActionWorkflowStep,
		ActorID:    run.ActorID,
		DocumentID: run.SubjectID,
		Trigger:    run.Trigger,
		Step:       step.Name(),
		InputKeys:  inputKeys,
		OutputKeys: outputKeys,
		Success:    stepErr == nil,
		DurationMS: float64(elapsed.Microseconds()) / 1000.0,
		Metadata:   map[string]any{"external": step.External()},
		CreatedAt:  time.Now().UTC(),
	}
	if outputKeys == nil {
		ev.OutputKeys = []string{}
	}
	if stepErr != nil {
		ev.Error = stepErr.Error()
	}
	return e.sink.Record(ctx, ev)
}
