package reconciler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimedOut is matched by every drain timeout.
	ErrTimedOut = errors.New("timed out")

	// ErrLaunchConfigurationNotFound means the referenced launch configuration does not exist.
	ErrLaunchConfigurationNotFound = errors.New("launch configuration not found")

	// ErrTargetGroupNotFound means a referenced target group does not exist.
	ErrTargetGroupNotFound = errors.New("target group not found")
)

// ValidationError is returned before any remote call when the spec is
// incomplete for the requested state.
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "Missing required arguments for autoscaling group create/update: " + strings.Join(e.Missing, ",")
	}
	return e.Reason
}

// RemoteError carries a provider failure verbatim.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a group does not drain within the deadline.
type TimeoutError struct {
	Name   string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("autoscaling group %q still has instances after %s", e.Name, e.Waited.Round(time.Second))
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

func remote(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}

// PolicyDeniedError is returned when a guardrail vetoes a planned mutation.
type PolicyDeniedError struct {
	Reasons []string
}

func (e *PolicyDeniedError) Error() string {
	return "denied by policy: " + strings.Join(e.Reasons, "; ")
}
