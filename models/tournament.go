package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TournamentStatus is the lifecycle state of a tournament.
type TournamentStatus string

const (
	StatusRegistration TournamentStatus = "registration"
	StatusInProgress   TournamentStatus = "in_progress"
	StatusPaused       TournamentStatus = "paused"
	StatusCompleted    TournamentStatus = "completed"
	StatusCancelled    TournamentStatus = "cancelled"
)

const MaxCapacity = 16

func (s TournamentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PlayerEntry is one roster line. Seed starts at 1.
type PlayerEntry struct {
	PlayerID          string `json:"player_id"`
	DisplayName       string `json:"display_name"`
	Seed              int    `json:"seed"`
	EliminatedAtRound *int   `json:"eliminated_at_round,omitempty"`
	Removed           bool   `json:"removed,omitempty"`
}

// Tournament is the aggregate root. Everything reachable from it is mutated
// only by the worker that owns the tournament id.
type Tournament struct {
	ID                   string           `json:"id"`
	GroupID              string           `json:"group_id"`
	Status               TournamentStatus `json:"status"`
	Capacity             int              `json:"capacity"`
	RegistrationDeadline time.Time        `json:"registration_deadline"`
	Roster               []PlayerEntry    `json:"roster"`
	Bracket              *Bracket         `json:"bracket,omitempty"`
	ChampionID           string           `json:"champion_id,omitempty"`
	PausedAt             *time.Time       `json:"paused_at,omitempty"`
	Fault                string           `json:"fault,omitempty"`
	CreatedBy            string           `json:"created_by"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (t *Tournament) Player(playerID string) (*PlayerEntry, bool) {
	for i := range t.Roster {
		if t.Roster[i].PlayerID == playerID {
			return &t.Roster[i], true
		}
	}
	return nil, false
}

// ActiveEntrants returns the roster in seed order, without removed entries.
func (t *Tournament) ActiveEntrants() []PlayerEntry {
	out := make([]PlayerEntry, 0, len(t.Roster))
	for _, p := range t.Roster {
		if !p.Removed {
			out = append(out, p)
		}
	}
	return out
}

// Reseed renumbers the remaining entrants 1..n in their current order.
func (t *Tournament) Reseed() {
	seed := 1
	for i := range t.Roster {
		if t.Roster[i].Removed {
			continue
		}
		t.Roster[i].Seed = seed
		seed++
	}
}

// Clone returns a deep copy through the persisted representation.
func (t *Tournament) Clone() (*Tournament, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to clone tournament %s: %w", t.ID, err)
	}
	var out Tournament
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to clone tournament %s: %w", t.ID, err)
	}
	return &out, nil
}
