package daemonlock

import "fmt"

// ErrHeldByOther is returned by Acquire when another process already holds
// the lock. The CLI surfaces its PID per spec.md §7 ("Lock contention ...
// monitor daemon exits immediately with the conflicting PID").
type ErrHeldByOther struct {
	PID int
}

func (e *ErrHeldByOther) Error() string {
	return fmt.Sprintf("lock already held by pid %d", e.PID)
}
