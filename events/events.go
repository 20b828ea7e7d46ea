// Package events defines the lifecycle notifications the tournament engine
// emits for notification and rendering collaborators.
package events

import (
	"time"

	"github.com/Dosada05/rps-tournament-bot/models"
)

type Type string

const (
	TypeTournamentCreated   Type = "tournament.created"
	TypePlayerJoined        Type = "tournament.player_joined"
	TypePlayerRemoved       Type = "tournament.player_removed"
	TypeTournamentActivated Type = "tournament.activated"
	TypeTournamentPaused    Type = "tournament.paused"
	TypeTournamentResumed   Type = "tournament.resumed"
	TypeTournamentCompleted Type = "tournament.completed"
	TypeTournamentCancelled Type = "tournament.cancelled"
	TypeMatchActivated      Type = "match.activated"
	TypeChoiceAccepted      Type = "match.choice_accepted"
	TypeGameResolved        Type = "match.game_resolved"
	TypeMatchFinalized      Type = "match.finalized"
	TypeRoundCompleted      Type = "round.completed"
)

type Event interface {
	Type() Type
	Meta() Envelope
}

// Envelope carries the routing fields shared by every event.
type Envelope struct {
	TournamentID string    `json:"tournament_id"`
	GroupID      string    `json:"group_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e Envelope) Meta() Envelope { return e }

func NewEnvelope(t *models.Tournament, now time.Time) Envelope {
	return Envelope{TournamentID: t.ID, GroupID: t.GroupID, OccurredAt: now}
}

type TournamentCreated struct {
	Envelope
	Capacity             int       `json:"capacity"`
	RegistrationDeadline time.Time `json:"registration_deadline"`
}

type PlayerJoined struct {
	Envelope
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	Seed        int    `json:"seed"`
}

type PlayerRemoved struct {
	Envelope
	PlayerID string `json:"player_id"`
	ActorID  string `json:"actor_id"`
}

type TournamentActivated struct {
	Envelope
	Bracket *models.Bracket      `json:"bracket"`
	Roster  []models.PlayerEntry `json:"roster"`
}

type TournamentPaused struct {
	Envelope
	ActorID string `json:"actor_id"`
}

type TournamentResumed struct {
	Envelope
	ActorID string `json:"actor_id"`
}

type TournamentCompleted struct {
	Envelope
	// ChampionID is empty when the final was voided.
	ChampionID string `json:"champion_id"`
}

type TournamentCancelled struct {
	Envelope
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type MatchActivated struct {
	Envelope
	MatchID      string    `json:"match_id"`
	Round        int       `json:"round"`
	Participants [2]string `json:"participants"`
	Deadline     time.Time `json:"deadline"`
}

// ChoiceAccepted never carries the choice itself; it stays hidden from the
// opponent until the game resolves.
type ChoiceAccepted struct {
	Envelope
	MatchID   string `json:"match_id"`
	PlayerID  string `json:"player_id"`
	GameIndex int    `json:"game_index"`
}

type GameResolved struct {
	Envelope
	MatchID   string                   `json:"match_id"`
	GameIndex int                      `json:"game_index"`
	Tie       bool                     `json:"tie"`
	WinnerID  string                   `json:"winner_id,omitempty"`
	Choices   map[string]models.Choice `json:"choices"`
	Score     map[string]int           `json:"score"`
	// NextDeadline is set when the series continues.
	NextDeadline *time.Time `json:"next_deadline,omitempty"`
}

type MatchFinalized struct {
	Envelope
	MatchID  string              `json:"match_id"`
	Round    int                 `json:"round"`
	WinnerID string              `json:"winner_id,omitempty"`
	Method   models.ResultMethod `json:"method"`
	ActorID  string              `json:"actor_id,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}

// RoundCompleted reports a round by its one-based number.
type RoundCompleted struct {
	Envelope
	Round int `json:"round"`
}

func (TournamentCreated) Type() Type   { return TypeTournamentCreated }
func (PlayerJoined) Type() Type        { return TypePlayerJoined }
func (PlayerRemoved) Type() Type       { return TypePlayerRemoved }
func (TournamentActivated) Type() Type { return TypeTournamentActivated }
func (TournamentPaused) Type() Type    { return TypeTournamentPaused }
func (TournamentResumed) Type() Type   { return TypeTournamentResumed }
func (TournamentCompleted) Type() Type { return TypeTournamentCompleted }
func (TournamentCancelled) Type() Type { return TypeTournamentCancelled }
func (MatchActivated) Type() Type      { return TypeMatchActivated }
func (ChoiceAccepted) Type() Type      { return TypeChoiceAccepted }
func (GameResolved) Type() Type        { return TypeGameResolved }
func (MatchFinalized) Type() Type      { return TypeMatchFinalized }
func (RoundCompleted) Type() Type      { return TypeRoundCompleted }
