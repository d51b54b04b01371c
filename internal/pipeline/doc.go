// Package pipeline provides the document workflow execution engine.
//
// A pipeline is an ordered list of steps run against a single shared
// context under a restricted dataflow contract:
//
//   - Each step declares the context fields it may read (inputs) and the
//     fields it may write (outputs).
//   - Before a step runs it receives a view of the context containing only
//     its declared inputs; declared inputs absent from the context are
//     simply omitted.
//   - After a step runs, its outputs are validated against the declared
//     output set and merged atomically. A step that writes an undeclared
//     field fails the run with a ContractViolationError before anything is
//     merged.
//
// Every step execution, success or failure, emits exactly one audit event
// carrying the step name, the input fields actually present, the output
// fields produced, and the wall-clock duration. The first failure aborts
// the run: the failure event is recorded, later steps never execute, and
// the error propagates to the caller.
//
// The executor holds no state across runs. Concurrent runs are safe as
// long as each owns its own Context.
package pipeline
