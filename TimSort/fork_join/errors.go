package fork_join

import (
	"errors"
	"fmt"
)

// ErrArenaExhausted is returned once a run needs more task slots than its
// arena was sized for. The run is aborted; no task is lost or duplicated.
var ErrArenaExhausted = errors.New("fork_join: task arena exhausted")

// PanicError carries a panic recovered from a worker.
type PanicError struct {
	Worker int
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fork_join: worker %d panicked: %v", e.Worker, e.Value)
}

// Unwrap exposes the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
