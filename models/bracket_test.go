package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoRoundBracket builds a 4-slot bracket with the first semifinal decided.
func twoRoundBracket() *Bracket {
	semi0 := &Match{ID: "t-R1M1", Round: 0, Slot: 0, Participants: [2]string{"A", "D"}, State: MatchFinalized,
		Result: &MatchResult{WinnerID: "A", Method: MethodWin, FinalizedAt: time.Unix(10, 0)}}
	semi1 := &Match{ID: "t-R1M2", Round: 0, Slot: 1, Participants: [2]string{"B", "C"}, State: MatchAwaitingChoices,
		Score: map[string]int{"B": 1, "C": 0}}
	final := &Match{ID: "t-R2M1", Round: 1, Slot: 0, Participants: [2]string{"A", ""}, State: MatchPending,
		Sources: [2]*SlotRef{{Round: 0, Slot: 0}, {Round: 0, Slot: 1}}}
	return &Bracket{Size: 4, Rounds: []Round{
		{Index: 0, Matches: []*Match{semi0, semi1}},
		{Index: 1, Matches: []*Match{final}},
	}}
}

func TestBracket_Navigation(t *testing.T) {
	b := twoRoundBracket()

	next, side, ok := b.Next(SlotRef{Round: 0, Slot: 1})
	require.True(t, ok)
	assert.Equal(t, SlotRef{Round: 1, Slot: 0}, next)
	assert.Equal(t, 1, side)

	_, _, ok = b.Next(SlotRef{Round: 1, Slot: 0})
	assert.False(t, ok)

	assert.Equal(t, "t-R2M1", b.Final().ID)
	assert.False(t, b.RoundComplete(0))

	m, ok := b.CurrentMatch("B")
	require.True(t, ok)
	assert.Equal(t, "t-R1M2", m.ID)

	m, ok = b.CurrentMatch("A")
	require.True(t, ok)
	assert.Equal(t, "t-R2M1", m.ID)

	_, ok = b.CurrentMatch("D")
	assert.False(t, ok)
}

func TestBracket_Verify(t *testing.T) {
	require.NoError(t, twoRoundBracket().Verify())

	tests := []struct {
		name   string
		mutate func(b *Bracket)
	}{
		{"size not power of two", func(b *Bracket) { b.Size = 3 }},
		{"round width", func(b *Bracket) { b.Rounds[0].Matches = b.Rounds[0].Matches[:1] }},
		{"finalized without result", func(b *Bracket) { b.Rounds[0].Matches[0].Result = nil }},
		{"winner outside match", func(b *Bracket) { b.Rounds[0].Matches[0].Result.WinnerID = "Z" }},
		{"open with decided series", func(b *Bracket) { b.Rounds[0].Matches[1].Score["B"] = 2 }},
		{"awaiting without opponent", func(b *Bracket) { b.Rounds[0].Matches[1].Participants[1] = "" }},
		{"wrong winner advanced", func(b *Bracket) { b.Rounds[1].Matches[0].Participants[0] = "D" }},
		{"broken source link", func(b *Bracket) { b.Rounds[1].Matches[0].Sources[1] = &SlotRef{Round: 0, Slot: 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := twoRoundBracket()
			tt.mutate(b)
			assert.ErrorIs(t, b.Verify(), ErrFault)
		})
	}
}

func TestBracket_CloneIsDeep(t *testing.T) {
	b := twoRoundBracket()
	c := b.Clone()
	c.Rounds[0].Matches[1].Score["B"] = 2
	c.Rounds[1].Matches[0].Participants[1] = "B"

	assert.Equal(t, 1, b.Rounds[0].Matches[1].Score["B"])
	assert.Empty(t, b.Rounds[1].Matches[0].Participants[1])
	assert.Nil(t, (*Bracket)(nil).Clone())
}

func TestTournament_Reseed(t *testing.T) {
	tour := &Tournament{Roster: []PlayerEntry{
		{PlayerID: "A", Seed: 1},
		{PlayerID: "B", Seed: 2, Removed: true},
		{PlayerID: "C", Seed: 3},
	}}
	tour.Reseed()

	active := tour.ActiveEntrants()
	require.Len(t, active, 2)
	assert.Equal(t, 1, active[0].Seed)
	assert.Equal(t, "C", active[1].PlayerID)
	assert.Equal(t, 2, active[1].Seed)
}
