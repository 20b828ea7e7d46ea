package models

import (
	"encoding/json"
	"fmt"
)

type Round struct {
	Index   int      `json:"index"`
	Matches []*Match `json:"matches"`
}

// Bracket stores rounds as flat index-addressed arrays. Links between
// matches are SlotRef coordinates, never pointers.
type Bracket struct {
	Size   int     `json:"size"`
	Rounds []Round `json:"rounds"`
}

// Clone returns a deep copy, used for event payloads and query results.
func (b *Bracket) Clone() *Bracket {
	if b == nil {
		return nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		panic(fmt.Sprintf("bracket is not serializable: %v", err))
	}
	var out Bracket
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("bracket is not serializable: %v", err))
	}
	return &out
}

func (b *Bracket) Match(ref SlotRef) (*Match, bool) {
	if ref.Round < 0 || ref.Round >= len(b.Rounds) {
		return nil, false
	}
	matches := b.Rounds[ref.Round].Matches
	if ref.Slot < 0 || ref.Slot >= len(matches) {
		return nil, false
	}
	return matches[ref.Slot], true
}

func (b *Bracket) FindMatch(id string) (*Match, bool) {
	for _, r := range b.Rounds {
		for _, m := range r.Matches {
			if m.ID == id {
				return m, true
			}
		}
	}
	return nil, false
}

// Next returns the match fed by ref and the side the winner occupies there.
// ok is false for the final.
func (b *Bracket) Next(ref SlotRef) (next SlotRef, side int, ok bool) {
	if ref.Round+1 >= len(b.Rounds) {
		return SlotRef{}, 0, false
	}
	return SlotRef{Round: ref.Round + 1, Slot: ref.Slot / 2}, ref.Slot % 2, true
}

func (b *Bracket) RoundComplete(round int) bool {
	if round < 0 || round >= len(b.Rounds) {
		return false
	}
	for _, m := range b.Rounds[round].Matches {
		if m.State != MatchFinalized {
			return false
		}
	}
	return true
}

// Final returns the last match, or nil for a zero-round bracket.
func (b *Bracket) Final() *Match {
	if len(b.Rounds) == 0 {
		return nil
	}
	last := b.Rounds[len(b.Rounds)-1]
	if len(last.Matches) == 0 {
		return nil
	}
	return last.Matches[0]
}

// CurrentMatch returns the open match the player occupies, if any.
func (b *Bracket) CurrentMatch(playerID string) (*Match, bool) {
	for _, r := range b.Rounds {
		for _, m := range r.Matches {
			if m.Open() && m.HasParticipant(playerID) {
				return m, true
			}
		}
	}
	return nil, false
}

// Verify checks the structural invariants of the bracket.
func (b *Bracket) Verify() error {
	if b.Size&(b.Size-1) != 0 || b.Size < 1 {
		return fmt.Errorf("%w: bracket size %d is not a power of two", ErrFault, b.Size)
	}
	for r, round := range b.Rounds {
		want := b.Size >> (r + 1)
		if len(round.Matches) != want {
			return fmt.Errorf("%w: round %d has %d matches, want %d", ErrFault, r, len(round.Matches), want)
		}
		for s, m := range round.Matches {
			if m.Round != r || m.Slot != s {
				return fmt.Errorf("%w: match %s stored at (%d,%d) claims (%d,%d)", ErrFault, m.ID, r, s, m.Round, m.Slot)
			}
			if err := b.verifyMatch(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bracket) verifyMatch(m *Match) error {
	switch m.State {
	case MatchFinalized:
		if m.Result == nil {
			return fmt.Errorf("%w: finalized match %s has no result", ErrFault, m.ID)
		}
		if m.Result.WinnerID != "" && !m.HasParticipant(m.Result.WinnerID) {
			return fmt.Errorf("%w: match %s winner %s is not a participant", ErrFault, m.ID, m.Result.WinnerID)
		}
		if m.Result.WinnerID == "" && m.Result.Method != MethodVoid {
			return fmt.Errorf("%w: match %s finalized by %s without a winner", ErrFault, m.ID, m.Result.Method)
		}
	case MatchAwaitingChoices:
		if !m.Ready() {
			return fmt.Errorf("%w: match %s awaits choices without two participants", ErrFault, m.ID)
		}
		for _, score := range m.Score {
			if score >= WinsNeeded {
				return fmt.Errorf("%w: match %s is open with a decided series", ErrFault, m.ID)
			}
		}
	}
	if m.Round == 0 {
		return nil
	}
	for side, src := range m.Sources {
		want := SlotRef{Round: m.Round - 1, Slot: m.Slot*2 + side}
		if src == nil || *src != want {
			return fmt.Errorf("%w: match %s side %d does not reference (%d,%d)", ErrFault, m.ID, side, want.Round, want.Slot)
		}
		prev, _ := b.Match(want)
		if prev.State != MatchFinalized || m.Vacant[side] {
			continue
		}
		if prev.Result != nil && prev.Result.WinnerID != m.Participants[side] {
			return fmt.Errorf("%w: match %s side %d does not hold the winner of %s", ErrFault, m.ID, side, prev.ID)
		}
	}
	return nil
}
