package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/solowsim/go/internal/game/lock"
	"github.com/mcdev12/solowsim/go/internal/models"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrTimeout    = errors.New("operation timed out")
	ErrEngine     = errors.New("economic model failed")
	ErrGameEnded  = errors.New("game has ended")
	ErrNotFound   = errors.New("team not found")
	ErrNotRunning = errors.New("game is not running")
)

// ValidationError reports bad input. No state was touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TimeoutError reports a lease or engine deadline that passed. Safe to retry.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
func (e *TimeoutError) Unwrap() error        { return e.Err }

// EngineError reports a failure from the economic model. Safe to retry.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("economic model %s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Is(target error) bool { return target == ErrEngine }
func (e *EngineError) Unwrap() error        { return e.Err }

// GameEndedError rejects operations after the terminal state. Not retryable.
type GameEndedError struct {
	Scores map[models.TeamID]float64
}

func (e *GameEndedError) Error() string {
	return ErrGameEnded.Error()
}

func (e *GameEndedError) Is(target error) bool { return target == ErrGameEnded }

// NotFoundError reports an unknown team.
type NotFoundError struct {
	TeamID models.TeamID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("team %q not found", e.TeamID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotRunningError rejects a round advance before start or while paused.
type NotRunningError struct {
	Status models.GameStatus
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("game is not running (status %s)", e.Status)
}

func (e *NotRunningError) Is(target error) bool { return target == ErrNotRunning }

// leaseError converts a lock manager failure into a TimeoutError.
func leaseError(op string, err error) error {
	return &TimeoutError{Op: op, Err: err}
}

// engineError classifies a failure returned by the economic model.
func engineError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, lock.ErrTimeout) {
		return &TimeoutError{Op: op, Err: err}
	}
	return &EngineError{Op: op, Err: err}
}
