package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/rps-tournament-bot/models"
)

// Errors returned by the engine. Each wraps one of the kinds in models so
// transports can classify them with errors.Is.
var (
	// Validation
	ErrNotParticipant       = fmt.Errorf("%w: player is not a participant of this match", models.ErrValidation)
	ErrInvalidCapacity      = fmt.Errorf("%w: capacity must be between 1 and %d", models.ErrValidation, models.MaxCapacity)
	ErrInvalidWindow        = fmt.Errorf("%w: registration window must be positive", models.ErrValidation)
	ErrGroupRequired        = fmt.Errorf("%w: group id is required", models.ErrValidation)
	ErrPlayerRequired       = fmt.Errorf("%w: player id is required", models.ErrValidation)
	ErrInvalidSeedOrder     = fmt.Errorf("%w: seed order must list every registered player once", models.ErrValidation)
	ErrWinnerNotInMatch     = fmt.Errorf("%w: winner must be a participant of the match", models.ErrValidation)
	ErrUnknownCommand       = fmt.Errorf("%w: unknown command", models.ErrValidation)
	ErrInvalidTimeoutPolicy = fmt.Errorf("%w: unknown double timeout policy", models.ErrValidation)

	// State conflicts
	ErrWrongState           = fmt.Errorf("%w: match is not accepting this operation", models.ErrStateConflict)
	ErrMatchFinalized       = fmt.Errorf("%w: match is already finalized", models.ErrStateConflict)
	ErrMatchNotReady        = fmt.Errorf("%w: match participants are not known yet", models.ErrStateConflict)
	ErrGroupAlreadyActive   = fmt.Errorf("%w: group already has an active tournament", models.ErrStateConflict)
	ErrAlreadyRegistered    = fmt.Errorf("%w: player is already registered", models.ErrStateConflict)
	ErrRegistrationClosed   = fmt.Errorf("%w: tournament registration is closed", models.ErrStateConflict)
	ErrTournamentNotRunning = fmt.Errorf("%w: tournament is not in progress", models.ErrStateConflict)
	ErrTournamentPaused     = fmt.Errorf("%w: tournament is paused", models.ErrStateConflict)
	ErrTournamentClosed     = fmt.Errorf("%w: tournament is finished or cancelled", models.ErrStateConflict)
	ErrInvalidTransition    = fmt.Errorf("%w: invalid tournament status transition", models.ErrStateConflict)

	// Capacity
	ErrCapacityReached = fmt.Errorf("%w: tournament registration is full", models.ErrCapacity)

	// Not found
	ErrTournamentNotFound = fmt.Errorf("%w: tournament not found", models.ErrNotFound)
	ErrMatchNotFound      = fmt.Errorf("%w: match not found", models.ErrNotFound)
	ErrPlayerNotFound     = fmt.Errorf("%w: player not found in roster", models.ErrNotFound)
	ErrNoActiveTournament = fmt.Errorf("%w: group has no active tournament", models.ErrNotFound)

	// Permission
	ErrAdminRequired = fmt.Errorf("%w: administrator required", models.ErrPermission)
	ErrNotYourMatch  = fmt.Errorf("%w: only the player or an administrator can do this", models.ErrPermission)

	// Fault
	ErrTournamentFaulted = fmt.Errorf("%w: tournament is halted after an invariant violation", models.ErrFault)

	ErrServiceStopped = errors.New("tournament service stopped")
)

// persistenceError marks a storage failure as retryable for the caller.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}
