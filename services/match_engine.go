package services

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/rps-tournament-bot/models"
)

// DoubleTimeoutPolicy decides a match where neither player chose in time.
type DoubleTimeoutPolicy string

const (
	// DoubleTimeoutHigherSeed advances the better seeded player by forfeit.
	DoubleTimeoutHigherSeed DoubleTimeoutPolicy = "higher_seed"
	// DoubleTimeoutVoid finalizes the match with nobody advancing.
	DoubleTimeoutVoid DoubleTimeoutPolicy = "void"
)

const (
	DefaultChoiceTimeout = 60 * time.Second

	reasonTimeout       = "timeout"
	reasonDoubleTimeout = "double timeout"
	reasonWithdrawn     = "withdrawn"
)

func ParseDoubleTimeoutPolicy(s string) (DoubleTimeoutPolicy, error) {
	switch p := DoubleTimeoutPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DoubleTimeoutHigherSeed, nil
	case DoubleTimeoutHigherSeed, DoubleTimeoutVoid:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeoutPolicy, s)
}

type MatchEngineConfig struct {
	ChoiceTimeout time.Duration
	DoubleTimeout DoubleTimeoutPolicy
}

// MatchOutcome describes what an engine call did to the match.
type MatchOutcome struct {
	// Choice is the stored choice of the submitting player.
	Choice    models.Choice
	Accepted  bool
	Duplicate bool
	// Game is set when the call resolved a game.
	Game *models.GameRecord
	// Rearmed means a fresh deadline was set and must be scheduled.
	Rearmed   bool
	Activated bool
	Finalized bool
	// Withdrawn means a side was vacated before the opponent was known.
	Withdrawn bool
	NoOp      bool
}

// MatchEngine runs the state machine of a single match. It holds no state of
// its own; the caller serializes access to each match.
type MatchEngine struct {
	cfg    MatchEngineConfig
	logger *slog.Logger
}

func NewMatchEngine(cfg MatchEngineConfig, logger *slog.Logger) *MatchEngine {
	if cfg.ChoiceTimeout <= 0 {
		cfg.ChoiceTimeout = DefaultChoiceTimeout
	}
	if cfg.DoubleTimeout == "" {
		cfg.DoubleTimeout = DoubleTimeoutHigherSeed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchEngine{cfg: cfg, logger: logger}
}

func (e *MatchEngine) Config() MatchEngineConfig {
	return e.cfg
}

// Activate moves a pending match with two known participants to the first
// game and arms its deadline.
func (e *MatchEngine) Activate(m *models.Match, now time.Time) error {
	if m.State != models.MatchPending {
		return fmt.Errorf("%w: match %s is %s", ErrWrongState, m.ID, m.State)
	}
	if !m.Ready() {
		return fmt.Errorf("%w: match %s", ErrMatchNotReady, m.ID)
	}
	m.State = models.MatchAwaitingChoices
	m.Score = map[string]int{m.Participants[0]: 0, m.Participants[1]: 0}
	m.Choices = map[string]models.ChoiceRecord{}
	m.GameIndex = 0
	e.arm(m, now)
	return nil
}

// Resolve settles a pending match once both sides are known: two players
// activate it, a single player gets a bye, two vacant sides void it.
// Matches with an unresolved side are left untouched.
func (e *MatchEngine) Resolve(m *models.Match, now time.Time) (MatchOutcome, error) {
	if m.State != models.MatchPending || !m.SideResolved(0) || !m.SideResolved(1) {
		return MatchOutcome{NoOp: true}, nil
	}
	switch {
	case m.Vacant[0] && m.Vacant[1]:
		e.finalize(m, "", models.MethodVoid, "", "no entrants", now)
		return MatchOutcome{Finalized: true}, nil
	case m.Vacant[0]:
		e.finalize(m, m.Participants[1], models.MethodBye, "", "", now)
		return MatchOutcome{Finalized: true}, nil
	case m.Vacant[1]:
		e.finalize(m, m.Participants[0], models.MethodBye, "", "", now)
		return MatchOutcome{Finalized: true}, nil
	}
	if err := e.Activate(m, now); err != nil {
		return MatchOutcome{}, err
	}
	return MatchOutcome{Activated: true, Rearmed: true}, nil
}

// SubmitChoice records a choice for the current game. A second submission by
// the same player returns the first choice unchanged. When both choices are
// present the game resolves exactly once.
func (e *MatchEngine) SubmitChoice(m *models.Match, playerID string, choice models.Choice, now time.Time) (MatchOutcome, error) {
	if !m.HasParticipant(playerID) {
		return MatchOutcome{}, fmt.Errorf("%w: %s in %s", ErrNotParticipant, playerID, m.ID)
	}
	if m.State != models.MatchAwaitingChoices {
		return MatchOutcome{}, fmt.Errorf("%w: match %s is %s", ErrWrongState, m.ID, m.State)
	}
	if !choice.Valid() {
		return MatchOutcome{}, fmt.Errorf("%w: %q", models.ErrUnknownChoice, choice)
	}
	if m.Deadline == nil {
		// paused
		return MatchOutcome{}, fmt.Errorf("%w: match %s has no running deadline", ErrWrongState, m.ID)
	}
	if prev, ok := m.Choices[playerID]; ok {
		return MatchOutcome{Choice: prev.Choice, Duplicate: true}, nil
	}

	if m.Choices == nil {
		m.Choices = map[string]models.ChoiceRecord{}
	}
	m.Choices[playerID] = models.ChoiceRecord{Choice: choice, SubmittedAt: now}
	out := MatchOutcome{Choice: choice, Accepted: true}
	if len(m.Outstanding()) > 0 {
		return out, nil
	}

	game := e.resolveGame(m, now)
	out.Game = &game
	if m.State == models.MatchFinalized {
		out.Finalized = true
	} else {
		out.Rearmed = true
	}
	return out, nil
}

func (e *MatchEngine) resolveGame(m *models.Match, now time.Time) models.GameRecord {
	a, b := m.Participants[0], m.Participants[1]
	ca, cb := m.Choices[a].Choice, m.Choices[b].Choice
	game := models.GameRecord{
		Index:      m.GameIndex,
		Choices:    map[string]models.Choice{a: ca, b: cb},
		ResolvedAt: now,
	}
	switch {
	case ca.Beats(cb):
		game.WinnerID = a
	case cb.Beats(ca):
		game.WinnerID = b
	}
	m.Games = append(m.Games, game)
	m.Choices = map[string]models.ChoiceRecord{}

	if game.WinnerID == "" {
		e.arm(m, now)
		return game
	}
	m.Score[game.WinnerID]++
	if m.Score[game.WinnerID] >= models.WinsNeeded {
		e.finalize(m, game.WinnerID, models.MethodWin, "", "", now)
		return game
	}
	m.GameIndex++
	e.arm(m, now)
	return game
}

// Forfeit concedes the match for playerID. With the opponent unknown the
// side is vacated instead and the match resolves later. Forfeiting a
// finalized match is a no-op.
func (e *MatchEngine) Forfeit(m *models.Match, playerID, actorID, reason string, now time.Time) (MatchOutcome, error) {
	side := m.Side(playerID)
	if side < 0 {
		return MatchOutcome{}, fmt.Errorf("%w: %s in %s", ErrNotParticipant, playerID, m.ID)
	}
	switch m.State {
	case models.MatchFinalized:
		return MatchOutcome{NoOp: true}, nil
	case models.MatchCancelled:
		return MatchOutcome{}, fmt.Errorf("%w: match %s is cancelled", ErrWrongState, m.ID)
	}

	if opponent := m.Participants[1-side]; opponent != "" {
		e.finalize(m, opponent, models.MethodForfeit, actorID, reason, now)
		return MatchOutcome{Finalized: true}, nil
	}
	m.Participants[side] = ""
	m.Vacant[side] = true
	return MatchOutcome{Withdrawn: true}, nil
}

// ApplyAdminOverride finalizes the match for winnerID. Both participants must
// be known.
func (e *MatchEngine) ApplyAdminOverride(m *models.Match, winnerID, actorID, reason string, now time.Time) (MatchOutcome, error) {
	switch m.State {
	case models.MatchFinalized:
		return MatchOutcome{}, fmt.Errorf("%w: %s", ErrMatchFinalized, m.ID)
	case models.MatchCancelled:
		return MatchOutcome{}, fmt.Errorf("%w: match %s is cancelled", ErrWrongState, m.ID)
	}
	if !m.Ready() {
		return MatchOutcome{}, fmt.Errorf("%w: %s", ErrMatchNotReady, m.ID)
	}
	if !m.HasParticipant(winnerID) {
		return MatchOutcome{}, fmt.Errorf("%w: %s in %s", ErrWinnerNotInMatch, winnerID, m.ID)
	}
	e.finalize(m, winnerID, models.MethodAdminOverride, actorID, reason, now)
	e.logger.Info("admin override applied",
		slog.String("match_id", m.ID),
		slog.String("winner_id", winnerID),
		slog.String("actor_id", actorID),
		slog.String("reason", reason),
	)
	return MatchOutcome{Finalized: true}, nil
}

// Expire handles a fired deadline. Tokens from an earlier arming, and
// matches no longer awaiting choices, are ignored. seedOf returns the
// roster seed of a player and is used by the higher seed policy.
func (e *MatchEngine) Expire(m *models.Match, token uint64, seedOf func(string) int, now time.Time) (MatchOutcome, error) {
	if m.State != models.MatchAwaitingChoices || m.Deadline == nil || token != m.DeadlineToken {
		return MatchOutcome{NoOp: true}, nil
	}
	missing := m.Outstanding()
	switch len(missing) {
	case 0:
		return MatchOutcome{NoOp: true}, nil
	case 1:
		e.finalize(m, m.Opponent(missing[0]), models.MethodForfeit, "", reasonTimeout, now)
		return MatchOutcome{Finalized: true}, nil
	}

	switch e.cfg.DoubleTimeout {
	case DoubleTimeoutVoid:
		e.finalize(m, "", models.MethodVoid, "", reasonDoubleTimeout, now)
	default:
		winner := m.Participants[0]
		if seedOf != nil && seedOf(m.Participants[1]) < seedOf(m.Participants[0]) {
			winner = m.Participants[1]
		}
		e.finalize(m, winner, models.MethodForfeit, "", reasonDoubleTimeout, now)
	}
	return MatchOutcome{Finalized: true}, nil
}

// Cancel stops an open match without a result.
func (e *MatchEngine) Cancel(m *models.Match) bool {
	if !m.Open() {
		return false
	}
	m.State = models.MatchCancelled
	m.Deadline = nil
	m.Remaining = 0
	m.DeadlineToken++
	return true
}

// Pause freezes the running deadline, keeping the time left.
func (e *MatchEngine) Pause(m *models.Match, now time.Time) bool {
	if m.State != models.MatchAwaitingChoices || m.Deadline == nil {
		return false
	}
	left := m.Deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	m.Remaining = left
	m.Deadline = nil
	m.DeadlineToken++
	return true
}

// Resume restarts a frozen deadline with the time that was left.
func (e *MatchEngine) Resume(m *models.Match, now time.Time) bool {
	if m.State != models.MatchAwaitingChoices || m.Deadline != nil {
		return false
	}
	deadline := now.Add(m.Remaining)
	m.Deadline = &deadline
	m.Remaining = 0
	m.DeadlineToken++
	return true
}

func (e *MatchEngine) arm(m *models.Match, now time.Time) {
	deadline := now.Add(e.cfg.ChoiceTimeout)
	m.Deadline = &deadline
	m.Remaining = 0
	m.DeadlineToken++
}

func (e *MatchEngine) finalize(m *models.Match, winnerID string, method models.ResultMethod, actorID, reason string, now time.Time) {
	m.State = models.MatchFinalized
	m.Result = &models.MatchResult{
		WinnerID:    winnerID,
		Method:      method,
		ActorID:     actorID,
		Reason:      reason,
		FinalizedAt: now,
	}
	m.Choices = nil
	m.Deadline = nil
	m.Remaining = 0
	m.DeadlineToken++
}
