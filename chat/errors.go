package chat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoTransition = errors.New("no transition defined")
	ErrStepBudget   = errors.New("step budget exhausted")
)

// StageError records the stage at which a run was aborted.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", strings.ToLower(string(e.Stage)), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
