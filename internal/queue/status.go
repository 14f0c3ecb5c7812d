package queue

import "fmt"

// Status is the lifecycle state encoded in a record's file name.
type Status string

const (
	StatusWaiting  Status = "waiting"  // submitted, not yet admitted
	StatusRunning  Status = "running"  // executing the external command
	StatusFinished Status = "finished" // command exited zero
	StatusFailed   Status = "failed"   // command exited non-zero
	StatusCrashed  Status = "crashed"  // owner ended before a terminal status
)

// Statuses lists every status in lifecycle order. Transitions only move
// forward through this list, which Lookup relies on.
var Statuses = []Status{StatusWaiting, StatusRunning, StatusFinished, StatusFailed, StatusCrashed}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transition can follow s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCrashed:
		return true
	default:
		return false
	}
}

// ParseStatus converts a file name component into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%s: unrecognised status", s)
}
