package pipeline

import (
	"errors"
	"fmt"
)

// ContractViolationError is returned when a step writes a context field
// absent from its declared outputs. This is a programming error in step
// authoring and is always fatal to the run.
type ContractViolationError struct {
	Step string
	Key  string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("step %s produced disallowed output key %q", e.Step, e.Key)
}

// IsContractViolation returns true if the error is a dataflow contract
// violation.
func IsContractViolation(err error) bool {
	var cv *ContractViolationError
	return errors.As(err, &cv)
}

// StepError wraps a failure raised by a step's own logic, for example an
// unsupported media type or a malformed external response.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
