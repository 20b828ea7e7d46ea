package services

import (
	"time"

	"github.com/Dosada05/rps-tournament-bot/models"
)

// Actor is whoever issued a command. IsAdmin is decided by the transport;
// the engine trusts it.
type Actor struct {
	ID      string `json:"id"`
	IsAdmin bool   `json:"is_admin"`
}

// Command is the closed set of operations the engine accepts. Every variant
// is handled by TournamentService.Dispatch.
type Command interface {
	command()
}

type CreateTournament struct {
	GroupID            string
	Capacity           int
	RegistrationWindow time.Duration
	Actor              Actor
}

type Join struct {
	TournamentID string
	PlayerID     string
	DisplayName  string
}

// Leave withdraws the player themselves.
type Leave struct {
	TournamentID string
	PlayerID     string
}

type SubmitChoice struct {
	MatchID  string
	PlayerID string
	Choice   models.Choice
}

type Forfeit struct {
	MatchID  string
	PlayerID string
	Reason   string
	Actor    Actor
}

// Activate closes registration early and builds the bracket.
type Activate struct {
	TournamentID string
	Actor        Actor
}

type Pause struct {
	TournamentID string
	Actor        Actor
}

type Resume struct {
	TournamentID string
	Actor        Actor
}

type Cancel struct {
	TournamentID string
	Actor        Actor
	Reason       string
}

type ForceMatchResult struct {
	MatchID  string
	WinnerID string
	Actor    Actor
	Reason   string
}

type RemovePlayer struct {
	TournamentID string
	PlayerID     string
	Actor        Actor
}

// ReorderSeeds replaces registration order with an explicit seed list.
type ReorderSeeds struct {
	TournamentID string
	PlayerIDs    []string
	Actor        Actor
}

// expireMatch and closeRegistration are injected by the scheduler.
type expireMatch struct {
	MatchID string
	Token   uint64
}

type closeRegistration struct {
	TournamentID string
}

type snapshotQuery struct {
	TournamentID string
}

func (CreateTournament) command()  {}
func (Join) command()              {}
func (Leave) command()             {}
func (SubmitChoice) command()      {}
func (Forfeit) command()           {}
func (Activate) command()          {}
func (Pause) command()             {}
func (Resume) command()            {}
func (Cancel) command()            {}
func (ForceMatchResult) command()  {}
func (RemovePlayer) command()      {}
func (ReorderSeeds) command()      {}
func (expireMatch) command()       {}
func (closeRegistration) command() {}
func (snapshotQuery) command()     {}

// Result is returned by a successful command. Tournament and Match are
// snapshots; mutating them has no effect on the engine.
type Result struct {
	Tournament *models.Tournament
	Match      *models.Match
	// Choice is the stored choice after SubmitChoice, which for a duplicate
	// submission is the first one.
	Choice    models.Choice
	Duplicate bool
}

func commandName(cmd Command) string {
	switch cmd.(type) {
	case CreateTournament:
		return "create_tournament"
	case Join:
		return "join"
	case Leave:
		return "leave"
	case SubmitChoice:
		return "submit_choice"
	case Forfeit:
		return "forfeit"
	case Activate:
		return "activate"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Cancel:
		return "cancel"
	case ForceMatchResult:
		return "force_match_result"
	case RemovePlayer:
		return "remove_player"
	case ReorderSeeds:
		return "reorder_seeds"
	case expireMatch:
		return "expire_match"
	case closeRegistration:
		return "close_registration"
	case snapshotQuery:
		return "snapshot"
	}
	return "unknown"
}
