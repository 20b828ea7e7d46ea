package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type MatchState string

const (
	MatchPending         MatchState = "pending"
	MatchAwaitingChoices MatchState = "awaiting_choices"
	MatchFinalized       MatchState = "finalized"
	MatchCancelled       MatchState = "cancelled"
)

type ResultMethod string

const (
	MethodWin           ResultMethod = "win"
	MethodForfeit       ResultMethod = "forfeit"
	MethodBye           ResultMethod = "bye"
	MethodAdminOverride ResultMethod = "admin_override"
	// MethodVoid finalizes a match with nobody advancing.
	MethodVoid ResultMethod = "void"
)

// WinsNeeded is the number of game wins that decides a best-of-3 series.
const WinsNeeded = 2

// SlotRef addresses a match inside a bracket by coordinates.
type SlotRef struct {
	Round int `json:"round"`
	Slot  int `json:"slot"`
}

type ChoiceRecord struct {
	Choice      Choice    `json:"choice,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GameRecord is one resolved game. WinnerID is empty for a tie.
type GameRecord struct {
	Index      int               `json:"index"`
	Choices    map[string]Choice `json:"choices"`
	WinnerID   string            `json:"winner_id,omitempty"`
	ResolvedAt time.Time         `json:"resolved_at"`
}

type MatchResult struct {
	WinnerID    string       `json:"winner_id,omitempty"`
	Method      ResultMethod `json:"method"`
	ActorID     string       `json:"actor_id,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	FinalizedAt time.Time    `json:"finalized_at"`
}

// Match is one bracket slot. Round and Slot are zero-based indexes.
// An empty participant with Vacant set means that side will never be filled.
type Match struct {
	ID            string                  `json:"id"`
	Round         int                     `json:"round"`
	Slot          int                     `json:"slot"`
	Participants  [2]string               `json:"participants"`
	Vacant        [2]bool                 `json:"vacant"`
	Sources       [2]*SlotRef             `json:"sources"`
	State         MatchState              `json:"state"`
	Choices       map[string]ChoiceRecord `json:"choices,omitempty"`
	Score         map[string]int          `json:"score,omitempty"`
	GameIndex     int                     `json:"game_index"`
	Games         []GameRecord            `json:"games,omitempty"`
	Deadline      *time.Time              `json:"deadline,omitempty"`
	Remaining     time.Duration           `json:"remaining,omitempty"`
	DeadlineToken uint64                  `json:"deadline_token"`
	Result        *MatchResult            `json:"result,omitempty"`
}

func (m *Match) Ref() SlotRef {
	return SlotRef{Round: m.Round, Slot: m.Slot}
}

// Side returns the participant index of playerID, or -1.
func (m *Match) Side(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i, p := range m.Participants {
		if p == playerID {
			return i
		}
	}
	return -1
}

func (m *Match) HasParticipant(playerID string) bool {
	return m.Side(playerID) >= 0
}

// Opponent returns the other occupant; empty when that side is not filled.
func (m *Match) Opponent(playerID string) string {
	switch m.Side(playerID) {
	case 0:
		return m.Participants[1]
	case 1:
		return m.Participants[0]
	}
	return ""
}

func (m *Match) SideResolved(side int) bool {
	return m.Participants[side] != "" || m.Vacant[side]
}

func (m *Match) Ready() bool {
	return m.Participants[0] != "" && m.Participants[1] != ""
}

// Open reports whether the match can still change outcome.
func (m *Match) Open() bool {
	return m.State == MatchPending || m.State == MatchAwaitingChoices
}

// Outstanding lists participants with no choice for the current game.
func (m *Match) Outstanding() []string {
	var out []string
	for _, p := range m.Participants {
		if p == "" {
			continue
		}
		if _, ok := m.Choices[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Loser returns the participant that did not win a finalized match.
func (m *Match) Loser() string {
	if m.Result == nil || m.Result.WinnerID == "" {
		return ""
	}
	return m.Opponent(m.Result.WinnerID)
}

func (m *Match) Clone() *Match {
	raw, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("match %s is not serializable: %v", m.ID, err))
	}
	var out Match
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("match %s is not serializable: %v", m.ID, err))
	}
	return &out
}
