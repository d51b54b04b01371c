package pipeline

import "context"

// RunFunc is the work performed by a step. It receives a view of the run
// context restricted to the step's declared inputs and returns the fields
// to merge back. Returned fields may be a strict subset of the declared
// outputs; outputs are optional, not mandatory.
type RunFunc func(ctx context.Context, in Context) (Context, error)

// Step is a named unit of work with a declared dataflow contract.
type Step interface {
	// Name returns the unique identifier for this step within a pipeline.
	// It is the discriminator on audit events.
	Name() string
	// Inputs returns the context fields the step may read.
	Inputs() []string
	// Outputs returns the context fields the step may write.
	Outputs() []string
	// External reports whether the step calls outside local process
	// control. It tags audit events; it does not change isolation.
	External() bool
	// Run executes the step against a restricted input view.
	Run(ctx context.Context, in Context) (Context, error)
}

// StepDef is an immutable Step built from declared fields and a run
// function. Steps are stateless: all dataflow goes through the context.
type StepDef struct {
	name     string
	inputs   []string
	outputs  []string
	external bool
	run      RunFunc
}

// NewStep creates a StepDef with the given contract.
func NewStep(name string, inputs, outputs []string, external bool, run RunFunc) StepDef {
	return StepDef{
		name:     name,
		inputs:   inputs,
		outputs:  outputs,
		external: external,
		run:      run,
	}
}

func (s StepDef) Name() string      { return s.name }
func (s StepDef) Inputs() []string  { return s.inputs }
func (s StepDef) Outputs() []string { return s.outputs }
func (s StepDef) External() bool    { return s.external }

func (s StepDef) Run(ctx context.Context, in Context) (Context, error) {
	return s.run(ctx, in)
}

// Ensure StepDef implements the interface.
var _ Step = StepDef{}
