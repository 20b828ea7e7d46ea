package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/rps-tournament-bot/brackets"
	"github.com/Dosada05/rps-tournament-bot/events"
	"github.com/Dosada05/rps-tournament-bot/models"
	"github.com/Dosada05/rps-tournament-bot/repositories"
)

const (
	DefaultCapacity           = 8
	DefaultRegistrationWindow = 5 * time.Minute

	defaultInboxSize   = 64
	recoveryGoroutines = 8
)

type TournamentServiceConfig struct {
	DefaultCapacity    int
	RegistrationWindow time.Duration
	InboxSize          int
	Engine             MatchEngineConfig
}

// TournamentService owns every running tournament of this process. Commands
// for one tournament are applied one at a time by that tournament's worker;
// different tournaments proceed in parallel.
type TournamentService interface {
	Dispatch(ctx context.Context, cmd Command) (Result, error)
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
	ActiveTournament(ctx context.Context, groupID string) (*models.Tournament, error)
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	// Recover loads every stored tournament that is still running and
	// re-arms its timers. It returns how many were adopted.
	Recover(ctx context.Context) (int, error)
	Close()
}

type tournamentService struct {
	cfg       TournamentServiceConfig
	repo      repositories.TournamentRepository
	publisher events.Publisher
	generator brackets.BracketGenerator
	engine    *MatchEngine
	scheduler *TimeoutScheduler
	metrics   Metrics
	logger    *slog.Logger
	newID     func() string

	mu      sync.Mutex
	closed  bool
	byGroup map[string]string
	workers map[string]*worker
	matches map[string]string
}

func NewTournamentService(
	cfg TournamentServiceConfig,
	repo repositories.TournamentRepository,
	publisher events.Publisher,
	clk clock.Clock,
	metrics Metrics,
	logger *slog.Logger,
) TournamentService {
	if cfg.DefaultCapacity == 0 {
		cfg.DefaultCapacity = DefaultCapacity
	}
	if cfg.RegistrationWindow <= 0 {
		cfg.RegistrationWindow = DefaultRegistrationWindow
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &tournamentService{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		generator: brackets.NewSingleEliminationGenerator(),
		engine:    NewMatchEngine(cfg.Engine, logger),
		scheduler: NewTimeoutScheduler(clk),
		metrics:   metrics,
		logger:    logger,
		newID:     newTournamentID,
		byGroup:   make(map[string]string),
		workers:   make(map[string]*worker),
		matches:   make(map[string]string),
	}
}

// newTournamentID returns the short id players type in chat.
func newTournamentID() string {
	return uuid.NewString()[:8]
}

// unusedID returns an id that neither this process nor the store knows, so
// a new tournament never overwrites an archived one.
func (s *tournamentService) unusedID(ctx context.Context) (string, error) {
	for {
		id := s.newID()
		s.mu.Lock()
		_, loaded := s.workers[id]
		s.mu.Unlock()
		if loaded {
			continue
		}
		_, err := s.repo.GetByID(ctx, id)
		switch {
		case errors.Is(err, models.ErrNotFound):
			return id, nil
		case err != nil:
			return "", persistenceError("check tournament id "+id, err)
		}
	}
}

// mutation collects what one command changed.
type mutation struct {
	t         *models.Tournament
	now       time.Time
	changed   bool
	events    []events.Event
	finalized []models.ResultMethod
}

func (m *mutation) emit(evt events.Event) {
	m.events = append(m.events, evt)
}

func (m *mutation) env() events.Envelope {
	return events.NewEnvelope(m.t, m.now)
}

func (s *tournamentService) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	if c, ok := cmd.(CreateTournament); ok {
		return s.create(ctx, c)
	}
	w, err := s.route(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	return w.submit(ctx, cmd)
}

func (s *tournamentService) route(ctx context.Context, cmd Command) (*worker, error) {
	switch c := cmd.(type) {
	case Join:
		return s.workerFor(ctx, c.TournamentID)
	case Leave:
		return s.workerFor(ctx, c.TournamentID)
	case Activate:
		return s.workerFor(ctx, c.TournamentID)
	case Pause:
		return s.workerFor(ctx, c.TournamentID)
	case Resume:
		return s.workerFor(ctx, c.TournamentID)
	case Cancel:
		return s.workerFor(ctx, c.TournamentID)
	case RemovePlayer:
		return s.workerFor(ctx, c.TournamentID)
	case ReorderSeeds:
		return s.workerFor(ctx, c.TournamentID)
	case closeRegistration:
		return s.workerFor(ctx, c.TournamentID)
	case snapshotQuery:
		return s.workerFor(ctx, c.TournamentID)
	case SubmitChoice:
		return s.workerForMatch(ctx, c.MatchID)
	case Forfeit:
		return s.workerForMatch(ctx, c.MatchID)
	case ForceMatchResult:
		return s.workerForMatch(ctx, c.MatchID)
	case expireMatch:
		return s.workerForMatch(ctx, c.MatchID)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

// workerFor returns the worker of a tournament, adopting it from the
// repository when this process has not loaded it yet.
func (s *tournamentService) workerFor(ctx context.Context, id string) (*worker, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceStopped
	}
	w, ok := s.workers[id]
	s.mu.Unlock()
	if ok {
		return w, nil
	}
	if id == "" {
		return nil, ErrTournamentNotFound
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, id)
		}
		return nil, persistenceError("load tournament "+id, err)
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTournamentClosed, id, t.Status)
	}
	return s.adopt(t)
}

func (s *tournamentService) workerForMatch(ctx context.Context, matchID string) (*worker, error) {
	s.mu.Lock()
	id, ok := s.matches[matchID]
	s.mu.Unlock()
	if !ok {
		var found bool
		id, found = tournamentIDFromMatch(matchID)
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
	}
	w, err := s.workerFor(ctx, id)
	if errors.Is(err, ErrTournamentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return w, err
}

// tournamentIDFromMatch splits ids produced by brackets.MatchID.
func tournamentIDFromMatch(matchID string) (string, bool) {
	i := strings.LastIndex(matchID, "-R")
	if i <= 0 {
		return "", false
	}
	return matchID[:i], true
}

// adopt registers a tournament loaded from storage and arms its timers.
func (s *tournamentService) adopt(t *models.Tournament) (*worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceStopped
	}
	if w, ok := s.workers[t.ID]; ok {
		return w, nil
	}
	if owner, ok := s.byGroup[t.GroupID]; ok && owner != t.ID && !t.Status.Terminal() {
		return nil, fmt.Errorf("%w: group %s is held by %s", ErrGroupAlreadyActive, t.GroupID, owner)
	}

	w := newWorker(t, s.cfg.InboxSize, s.handle)
	s.workers[t.ID] = w
	if !t.Status.Terminal() {
		s.byGroup[t.GroupID] = t.ID
	}
	if t.Bracket != nil {
		for _, round := range t.Bracket.Rounds {
			for _, m := range round.Matches {
				s.matches[m.ID] = t.ID
			}
		}
		w.indexed = true
	}
	s.metrics.ActiveTournaments(len(s.byGroup))
	// Timers are armed before the worker runs, so nothing else reads t yet.
	s.syncTimers(w)
	go w.run()
	return w, nil
}

func (s *tournamentService) create(ctx context.Context, c CreateTournament) (res Result, err error) {
	started := time.Now()
	defer func() { s.metrics.CommandHandled(commandName(c), err, time.Since(started)) }()

	group := strings.TrimSpace(c.GroupID)
	if group == "" {
		return Result{}, ErrGroupRequired
	}
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	capacity := c.Capacity
	if capacity == 0 {
		capacity = s.cfg.DefaultCapacity
	}
	if capacity < 1 || capacity > models.MaxCapacity {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	window := c.RegistrationWindow
	if window == 0 {
		window = s.cfg.RegistrationWindow
	}
	if window < 0 {
		return Result{}, fmt.Errorf("%w: got %s", ErrInvalidWindow, window)
	}

	id, err := s.unusedID(ctx)
	if err != nil {
		return Result{}, err
	}

	now := s.scheduler.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrServiceStopped
	}
	if owner, ok := s.byGroup[group]; ok {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s runs %s", ErrGroupAlreadyActive, group, owner)
	}
	if s.workers[id] != nil {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: tournament id %s was taken concurrently", models.ErrStateConflict, id)
	}
	t := &models.Tournament{
		ID:                   id,
		GroupID:              group,
		Status:               models.StatusRegistration,
		Capacity:             capacity,
		RegistrationDeadline: now.Add(window),
		Roster:               []models.PlayerEntry{},
		CreatedBy:            c.Actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	// The group and id are claimed before the save so a concurrent create
	// for the same group fails fast. Commands sent meanwhile wait in the
	// inbox until the worker starts.
	w := newWorker(t, s.cfg.InboxSize, s.handle)
	s.byGroup[group] = id
	s.workers[id] = w
	s.mu.Unlock()

	if err := s.repo.Save(ctx, t); err != nil {
		s.mu.Lock()
		delete(s.byGroup, group)
		delete(s.workers, id)
		s.mu.Unlock()
		w.stop()
		if errors.Is(err, models.ErrStateConflict) {
			return Result{}, fmt.Errorf("%w: %s", ErrGroupAlreadyActive, group)
		}
		return Result{}, persistenceError("create tournament", err)
	}

	s.mu.Lock()
	s.metrics.ActiveTournaments(len(s.byGroup))
	s.mu.Unlock()
	s.syncTimers(w)
	clone, err := t.Clone()
	if err != nil {
		return Result{}, err
	}
	go w.run()

	s.publish(ctx, []events.Event{events.TournamentCreated{
		Envelope:             events.NewEnvelope(t, now),
		Capacity:             t.Capacity,
		RegistrationDeadline: t.RegistrationDeadline,
	}})
	s.logger.InfoContext(ctx, "tournament created",
		slog.String("tournament_id", id),
		slog.String("group_id", group),
		slog.Int("capacity", capacity),
		slog.Time("registration_deadline", t.RegistrationDeadline),
	)
	return Result{Tournament: clone}, nil
}

// handle runs inside the tournament's worker.
func (s *tournamentService) handle(ctx context.Context, w *worker, cmd Command) (res Result, err error) {
	started := time.Now()
	defer func() { s.metrics.CommandHandled(commandName(cmd), err, time.Since(started)) }()

	t := w.tournament
	_, query := cmd.(snapshotQuery)
	if w.unsaved {
		// Reads are still served while the store is down.
		if err := s.resave(ctx, w); err != nil && !query {
			return Result{}, err
		}
	}
	if query {
		clone, err := t.Clone()
		if err != nil {
			return Result{}, err
		}
		return Result{Tournament: clone}, nil
	}
	if t.Fault != "" {
		if c, ok := cmd.(Cancel); ok {
			return s.cancelHalted(ctx, w, c)
		}
		return Result{}, fmt.Errorf("%w: %s", ErrTournamentFaulted, t.ID)
	}

	mut := &mutation{t: t, now: s.scheduler.Now()}
	res, err = s.safeApply(ctx, mut, cmd)
	if err != nil && !mut.changed && !errors.Is(err, models.ErrFault) {
		return Result{}, err
	}
	if err == nil && !mut.changed {
		if res.Tournament, err = t.Clone(); err != nil {
			return Result{}, err
		}
		return res, nil
	}
	if err == nil && t.Bracket != nil {
		err = t.Bracket.Verify()
	}
	if err != nil {
		return Result{}, s.halt(ctx, w, cmd, err)
	}

	t.UpdatedAt = mut.now
	saveErr := s.repo.Save(ctx, t)
	w.unsaved = saveErr != nil
	s.syncTimers(w)
	s.publish(ctx, mut.events)
	for _, method := range mut.finalized {
		s.metrics.MatchFinalized(method)
	}
	s.afterCommit(w)

	if res.Tournament, err = t.Clone(); err != nil {
		return Result{}, err
	}
	if saveErr != nil {
		s.logger.ErrorContext(ctx, "failed to save tournament",
			slog.String("tournament_id", t.ID),
			slog.String("command", commandName(cmd)),
			slog.Any("error", saveErr),
		)
		return res, persistenceError("save tournament "+t.ID, saveErr)
	}
	return res, nil
}

func (s *tournamentService) safeApply(ctx context.Context, mut *mutation, cmd Command) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic while applying %s: %v", models.ErrFault, commandName(cmd), r)
		}
	}()
	return s.apply(ctx, mut, cmd)
}

// halt marks the tournament faulted after an invariant violation. The state
// is kept as found for inspection and every later command is refused.
func (s *tournamentService) halt(ctx context.Context, w *worker, cmd Command, cause error) error {
	t := w.tournament
	t.Fault = cause.Error()
	t.UpdatedAt = s.scheduler.Now()
	s.logger.ErrorContext(ctx, "tournament halted",
		slog.String("tournament_id", t.ID),
		slog.String("command", commandName(cmd)),
		slog.Any("error", cause),
	)
	s.syncTimers(w)
	if err := s.repo.Save(ctx, t); err != nil {
		w.unsaved = true
		s.logger.ErrorContext(ctx, "failed to save faulted tournament",
			slog.String("tournament_id", t.ID),
			slog.Any("error", err),
		)
	}
	return fmt.Errorf("%w: %s: %v", ErrTournamentFaulted, t.ID, cause)
}

// resave writes state whose last save failed. Commands that arrive
// afterwards are refused until it succeeds, so a retried command cannot
// pass a state the store never saw.
func (s *tournamentService) resave(ctx context.Context, w *worker) error {
	t := w.tournament
	if err := s.repo.Save(ctx, t); err != nil {
		s.logger.ErrorContext(ctx, "failed to save tournament",
			slog.String("tournament_id", t.ID),
			slog.Any("error", err),
		)
		return persistenceError("save tournament "+t.ID, err)
	}
	w.unsaved = false
	s.syncTimers(w)
	s.logger.InfoContext(ctx, "tournament saved after earlier failure",
		slog.String("tournament_id", t.ID),
		slog.String("status", string(t.Status)),
	)
	return nil
}

// cancelHalted lets an admin close a halted tournament so its group is
// released. The bracket is left as found.
func (s *tournamentService) cancelHalted(ctx context.Context, w *worker, c Cancel) (Result, error) {
	t := w.tournament
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if t.Status.Terminal() {
		return Result{}, fmt.Errorf("%w: %s is %s", ErrTournamentClosed, t.ID, t.Status)
	}
	now := s.scheduler.Now()
	t.Status = models.StatusCancelled
	t.PausedAt = nil
	t.UpdatedAt = now
	saveErr := s.repo.Save(ctx, t)
	w.unsaved = saveErr != nil
	s.syncTimers(w)
	s.publish(ctx, []events.Event{events.TournamentCancelled{
		Envelope: events.NewEnvelope(t, now),
		ActorID:  c.Actor.ID,
		Reason:   c.Reason,
	}})
	s.afterCommit(w)
	s.logger.WarnContext(ctx, "halted tournament cancelled",
		slog.String("tournament_id", t.ID),
		slog.String("actor_id", c.Actor.ID),
		slog.String("fault", t.Fault),
	)

	clone, err := t.Clone()
	if err != nil {
		return Result{}, err
	}
	if saveErr != nil {
		return Result{Tournament: clone}, persistenceError("save tournament "+t.ID, saveErr)
	}
	return Result{Tournament: clone}, nil
}

// afterCommit updates the registry after a command: matches become
// addressable once a bracket exists, and a finished tournament frees its
// group. The worker is kept so later commands get a state conflict.
func (s *tournamentService) afterCommit(w *worker) {
	t := w.tournament
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Bracket != nil && !w.indexed {
		for _, round := range t.Bracket.Rounds {
			for _, m := range round.Matches {
				s.matches[m.ID] = t.ID
			}
		}
		w.indexed = true
	}
	if t.Status.Terminal() && s.byGroup[t.GroupID] == t.ID {
		delete(s.byGroup, t.GroupID)
		s.metrics.ActiveTournaments(len(s.byGroup))
	}
}

func (s *tournamentService) apply(ctx context.Context, mut *mutation, cmd Command) (Result, error) {
	t := mut.t
	switch cmd.(type) {
	case expireMatch, closeRegistration:
		// Timer commands never fail; they may simply be stale.
	case Forfeit:
		if t.Status.Terminal() {
			return Result{}, fmt.Errorf("%w: %s is %s", ErrTournamentClosed, t.ID, t.Status)
		}
		if t.Status == models.StatusPaused {
			return Result{}, fmt.Errorf("%w: %s", ErrTournamentPaused, t.ID)
		}
	case Resume, Cancel:
		if t.Status.Terminal() {
			return Result{}, fmt.Errorf("%w: %s is %s", ErrTournamentClosed, t.ID, t.Status)
		}
	default:
		if t.Status.Terminal() {
			return Result{}, fmt.Errorf("%w: %s is %s", ErrTournamentClosed, t.ID, t.Status)
		}
		if t.Status == models.StatusPaused {
			return Result{}, fmt.Errorf("%w: %s", ErrTournamentPaused, t.ID)
		}
	}

	switch c := cmd.(type) {
	case Join:
		return s.join(ctx, mut, c)
	case Leave:
		return s.leave(mut, c)
	case SubmitChoice:
		return s.submitChoice(mut, c)
	case Forfeit:
		return s.forfeit(mut, c)
	case Activate:
		return s.activateCommand(ctx, mut, c)
	case Pause:
		return s.pause(mut, c)
	case Resume:
		return s.resume(mut, c)
	case Cancel:
		return s.cancel(mut, c)
	case ForceMatchResult:
		return s.forceMatchResult(mut, c)
	case RemovePlayer:
		return s.removePlayer(mut, c)
	case ReorderSeeds:
		return s.reorderSeeds(mut, c)
	case expireMatch:
		return s.expire(ctx, mut, c)
	case closeRegistration:
		return s.closeRegistration(ctx, mut)
	}
	return Result{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

func (s *tournamentService) join(ctx context.Context, mut *mutation, c Join) (Result, error) {
	t := mut.t
	if c.PlayerID == "" {
		return Result{}, ErrPlayerRequired
	}
	if t.Status != models.StatusRegistration || !mut.now.Before(t.RegistrationDeadline) {
		return Result{}, fmt.Errorf("%w: %s", ErrRegistrationClosed, t.ID)
	}
	if _, ok := t.Player(c.PlayerID); ok {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, c.PlayerID)
	}
	if len(t.Roster) >= t.Capacity {
		return Result{}, fmt.Errorf("%w: %d of %d", ErrCapacityReached, len(t.Roster), t.Capacity)
	}

	name := strings.TrimSpace(c.DisplayName)
	if name == "" {
		name = c.PlayerID
	}
	t.Roster = append(t.Roster, models.PlayerEntry{PlayerID: c.PlayerID, DisplayName: name})
	t.Reseed()
	mut.changed = true
	entry, _ := t.Player(c.PlayerID)
	mut.emit(events.PlayerJoined{
		Envelope:    mut.env(),
		PlayerID:    c.PlayerID,
		DisplayName: name,
		Seed:        entry.Seed,
	})

	if len(t.Roster) == t.Capacity {
		return s.activate(ctx, mut)
	}
	return Result{}, nil
}

func (s *tournamentService) leave(mut *mutation, c Leave) (Result, error) {
	t := mut.t
	if t.Status != models.StatusRegistration {
		return Result{}, fmt.Errorf("%w: %s", ErrRegistrationClosed, t.ID)
	}
	if _, ok := t.Player(c.PlayerID); !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, c.PlayerID)
	}
	dropEntrant(t, c.PlayerID)
	mut.changed = true
	mut.emit(events.PlayerRemoved{Envelope: mut.env(), PlayerID: c.PlayerID, ActorID: c.PlayerID})
	return Result{}, nil
}

func (s *tournamentService) submitChoice(mut *mutation, c SubmitChoice) (Result, error) {
	t := mut.t
	if t.Status != models.StatusInProgress {
		return Result{}, fmt.Errorf("%w: %s", ErrTournamentNotRunning, t.ID)
	}
	m, err := findMatch(t, c.MatchID)
	if err != nil {
		return Result{}, err
	}
	gameIndex := m.GameIndex
	out, err := s.engine.SubmitChoice(m, c.PlayerID, c.Choice, mut.now)
	if err != nil {
		return Result{}, err
	}
	res := Result{Choice: out.Choice, Duplicate: out.Duplicate}
	if out.Duplicate {
		res.Match = m.Clone()
		return res, nil
	}

	mut.changed = true
	mut.emit(events.ChoiceAccepted{
		Envelope:  mut.env(),
		MatchID:   m.ID,
		PlayerID:  c.PlayerID,
		GameIndex: gameIndex,
	})
	if out.Game != nil {
		resolved := events.GameResolved{
			Envelope:  mut.env(),
			MatchID:   m.ID,
			GameIndex: out.Game.Index,
			Tie:       out.Game.WinnerID == "",
			WinnerID:  out.Game.WinnerID,
			Choices:   out.Game.Choices,
			Score:     copyScore(m.Score),
		}
		if !out.Finalized && m.Deadline != nil {
			next := *m.Deadline
			resolved.NextDeadline = &next
		}
		mut.emit(resolved)
	}
	if out.Finalized {
		if err := s.onFinalized(mut, m); err != nil {
			return Result{}, err
		}
	}
	res.Match = m.Clone()
	return res, nil
}

func (s *tournamentService) forfeit(mut *mutation, c Forfeit) (Result, error) {
	t := mut.t
	if c.Actor.ID != "" && c.Actor.ID != c.PlayerID && !c.Actor.IsAdmin {
		return Result{}, ErrNotYourMatch
	}
	if t.Status == models.StatusRegistration {
		return Result{}, fmt.Errorf("%w: %s", ErrTournamentNotRunning, t.ID)
	}
	m, err := findMatch(t, c.MatchID)
	if err != nil {
		return Result{}, err
	}
	reason := c.Reason
	if reason == "" {
		reason = "forfeit"
	}
	out, err := s.engine.Forfeit(m, c.PlayerID, c.Actor.ID, reason, mut.now)
	if err != nil {
		return Result{}, err
	}
	if out.NoOp {
		return Result{Match: m.Clone()}, nil
	}
	mut.changed = true
	if err := s.afterForfeit(mut, m, c.PlayerID, out); err != nil {
		return Result{}, err
	}
	return Result{Match: m.Clone()}, nil
}

func (s *tournamentService) afterForfeit(mut *mutation, m *models.Match, playerID string, out MatchOutcome) error {
	switch {
	case out.Finalized:
		return s.onFinalized(mut, m)
	case out.Withdrawn:
		eliminate(mut.t, playerID, m.Round)
		return s.resolveMatch(mut, m)
	}
	return nil
}

func (s *tournamentService) activateCommand(ctx context.Context, mut *mutation, c Activate) (Result, error) {
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if err := checkTransition(mut.t, models.StatusInProgress); err != nil {
		return Result{}, err
	}
	return s.activate(ctx, mut)
}

// activate closes registration and builds the bracket. Byes finalize at once
// and their winners move forward before any match starts.
func (s *tournamentService) activate(ctx context.Context, mut *mutation) (Result, error) {
	t := mut.t
	entrants := t.ActiveEntrants()
	bracket, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		TournamentID: t.ID,
		Entrants:     entrants,
		Policy:       brackets.SeedAsGiven,
	})
	if err != nil {
		if mut.changed {
			return Result{}, fmt.Errorf("%w: bracket generation after join: %v", models.ErrFault, err)
		}
		return Result{}, err
	}

	mut.changed = true
	t.Bracket = bracket
	t.Status = models.StatusInProgress
	roster := make([]models.PlayerEntry, len(t.Roster))
	copy(roster, t.Roster)
	mut.emit(events.TournamentActivated{Envelope: mut.env(), Bracket: bracket.Clone(), Roster: roster})
	s.logger.Info("tournament activated",
		slog.String("tournament_id", t.ID),
		slog.Int("entrants", len(entrants)),
		slog.Int("rounds", len(bracket.Rounds)),
	)

	if len(bracket.Rounds) == 0 {
		s.complete(mut, entrants[0].PlayerID)
		return Result{}, nil
	}
	for _, m := range bracket.Rounds[0].Matches {
		if err := s.resolveMatch(mut, m); err != nil {
			return Result{}, err
		}
	}
	return Result{}, nil
}

// resolveMatch starts or settles a pending match whose sides are known.
func (s *tournamentService) resolveMatch(mut *mutation, m *models.Match) error {
	out, err := s.engine.Resolve(m, mut.now)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrFault, err)
	}
	if out.Activated {
		mut.changed = true
		mut.emit(events.MatchActivated{
			Envelope:     mut.env(),
			MatchID:      m.ID,
			Round:        m.Round,
			Participants: m.Participants,
			Deadline:     *m.Deadline,
		})
	}
	if out.Finalized {
		return s.onFinalized(mut, m)
	}
	return nil
}

// onFinalized records a result and moves its winner into the next round.
func (s *tournamentService) onFinalized(mut *mutation, m *models.Match) error {
	t := mut.t
	result := m.Result
	if result == nil {
		return fmt.Errorf("%w: match %s finalized without a result", models.ErrFault, m.ID)
	}
	mut.changed = true
	mut.finalized = append(mut.finalized, result.Method)
	mut.emit(events.MatchFinalized{
		Envelope: mut.env(),
		MatchID:  m.ID,
		Round:    m.Round,
		WinnerID: result.WinnerID,
		Method:   result.Method,
		ActorID:  result.ActorID,
		Reason:   result.Reason,
	})

	if result.WinnerID != "" {
		if loser := m.Loser(); loser != "" {
			eliminate(t, loser, m.Round)
		}
	} else {
		for _, p := range m.Participants {
			if p != "" {
				eliminate(t, p, m.Round)
			}
		}
	}
	if t.Bracket.RoundComplete(m.Round) {
		mut.emit(events.RoundCompleted{Envelope: mut.env(), Round: m.Round + 1})
	}

	nextRef, side, ok := t.Bracket.Next(m.Ref())
	if !ok {
		s.complete(mut, result.WinnerID)
		return nil
	}
	next, ok := t.Bracket.Match(nextRef)
	if !ok {
		return fmt.Errorf("%w: match %s has no successor", models.ErrFault, m.ID)
	}
	if next.State != models.MatchPending || next.SideResolved(side) {
		return fmt.Errorf("%w: successor %s of %s is already filled", models.ErrFault, next.ID, m.ID)
	}
	if result.WinnerID != "" {
		next.Participants[side] = result.WinnerID
	} else {
		next.Vacant[side] = true
	}
	return s.resolveMatch(mut, next)
}

func (s *tournamentService) complete(mut *mutation, championID string) {
	t := mut.t
	t.ChampionID = championID
	t.Status = models.StatusCompleted
	t.PausedAt = nil
	mut.changed = true
	mut.emit(events.TournamentCompleted{Envelope: mut.env(), ChampionID: championID})
	s.logger.Info("tournament completed",
		slog.String("tournament_id", t.ID),
		slog.String("champion_id", championID),
	)
}

func (s *tournamentService) pause(mut *mutation, c Pause) (Result, error) {
	t := mut.t
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if err := checkTransition(t, models.StatusPaused); err != nil {
		return Result{}, err
	}
	forEachMatch(t, func(m *models.Match) { s.engine.Pause(m, mut.now) })
	paused := mut.now
	t.Status = models.StatusPaused
	t.PausedAt = &paused
	mut.changed = true
	mut.emit(events.TournamentPaused{Envelope: mut.env(), ActorID: c.Actor.ID})
	return Result{}, nil
}

func (s *tournamentService) resume(mut *mutation, c Resume) (Result, error) {
	t := mut.t
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if err := checkTransition(t, models.StatusInProgress); err != nil {
		return Result{}, err
	}
	forEachMatch(t, func(m *models.Match) { s.engine.Resume(m, mut.now) })
	t.Status = models.StatusInProgress
	t.PausedAt = nil
	mut.changed = true
	mut.emit(events.TournamentResumed{Envelope: mut.env(), ActorID: c.Actor.ID})
	return Result{}, nil
}

func (s *tournamentService) cancel(mut *mutation, c Cancel) (Result, error) {
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if err := checkTransition(mut.t, models.StatusCancelled); err != nil {
		return Result{}, err
	}
	s.cancelTournament(mut, c.Actor.ID, c.Reason)
	return Result{}, nil
}

func (s *tournamentService) cancelTournament(mut *mutation, actorID, reason string) {
	t := mut.t
	forEachMatch(t, func(m *models.Match) { s.engine.Cancel(m) })
	t.Status = models.StatusCancelled
	t.PausedAt = nil
	mut.changed = true
	mut.emit(events.TournamentCancelled{Envelope: mut.env(), ActorID: actorID, Reason: reason})
	s.logger.Info("tournament cancelled",
		slog.String("tournament_id", t.ID),
		slog.String("actor_id", actorID),
		slog.String("reason", reason),
	)
}

func (s *tournamentService) forceMatchResult(mut *mutation, c ForceMatchResult) (Result, error) {
	t := mut.t
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if t.Status != models.StatusInProgress {
		return Result{}, fmt.Errorf("%w: %s", ErrTournamentNotRunning, t.ID)
	}
	m, err := findMatch(t, c.MatchID)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.engine.ApplyAdminOverride(m, c.WinnerID, c.Actor.ID, c.Reason, mut.now); err != nil {
		return Result{}, err
	}
	if err := s.onFinalized(mut, m); err != nil {
		return Result{}, err
	}
	return Result{Match: m.Clone()}, nil
}

// removePlayer takes a player out. During registration the entry is dropped
// and the rest reseeded; once running, the player's open match is conceded.
func (s *tournamentService) removePlayer(mut *mutation, c RemovePlayer) (Result, error) {
	t := mut.t
	if c.PlayerID == "" {
		return Result{}, ErrPlayerRequired
	}
	if !c.Actor.IsAdmin && c.Actor.ID != c.PlayerID {
		return Result{}, ErrAdminRequired
	}
	entry, ok := t.Player(c.PlayerID)
	if !ok || entry.Removed {
		return Result{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, c.PlayerID)
	}

	removed := events.PlayerRemoved{Envelope: mut.env(), PlayerID: c.PlayerID, ActorID: c.Actor.ID}
	if t.Status == models.StatusRegistration {
		dropEntrant(t, c.PlayerID)
		mut.changed = true
		mut.emit(removed)
		return Result{}, nil
	}

	entry.Removed = true
	mut.changed = true
	mut.emit(removed)
	m, ok := t.Bracket.CurrentMatch(c.PlayerID)
	if !ok {
		return Result{}, nil
	}
	out, err := s.engine.Forfeit(m, c.PlayerID, c.Actor.ID, reasonWithdrawn, mut.now)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", models.ErrFault, err)
	}
	if err := s.afterForfeit(mut, m, c.PlayerID, out); err != nil {
		return Result{}, err
	}
	return Result{Match: m.Clone()}, nil
}

func (s *tournamentService) reorderSeeds(mut *mutation, c ReorderSeeds) (Result, error) {
	t := mut.t
	if !c.Actor.IsAdmin {
		return Result{}, ErrAdminRequired
	}
	if t.Status != models.StatusRegistration {
		return Result{}, fmt.Errorf("%w: %s", ErrRegistrationClosed, t.ID)
	}
	if len(c.PlayerIDs) != len(t.Roster) {
		return Result{}, fmt.Errorf("%w: got %d ids for %d players", ErrInvalidSeedOrder, len(c.PlayerIDs), len(t.Roster))
	}
	reordered := make([]models.PlayerEntry, 0, len(t.Roster))
	seen := make(map[string]bool, len(c.PlayerIDs))
	for _, id := range c.PlayerIDs {
		entry, ok := t.Player(id)
		if !ok || seen[id] {
			return Result{}, fmt.Errorf("%w: %q", ErrInvalidSeedOrder, id)
		}
		seen[id] = true
		reordered = append(reordered, *entry)
	}
	t.Roster = reordered
	t.Reseed()
	mut.changed = true
	return Result{}, nil
}

func (s *tournamentService) expire(ctx context.Context, mut *mutation, c expireMatch) (Result, error) {
	t := mut.t
	if t.Status != models.StatusInProgress {
		return Result{}, nil
	}
	m, err := findMatch(t, c.MatchID)
	if err != nil {
		return Result{}, nil
	}
	seedOf := func(playerID string) int {
		if entry, ok := t.Player(playerID); ok {
			return entry.Seed
		}
		return models.MaxCapacity + 1
	}
	missing := m.Outstanding()
	out, err := s.engine.Expire(m, c.Token, seedOf, mut.now)
	if err != nil || out.NoOp {
		return Result{}, err
	}
	s.logger.InfoContext(ctx, "match timed out",
		slog.String("tournament_id", t.ID),
		slog.String("match_id", m.ID),
		slog.Any("missing", missing),
	)
	if err := s.onFinalized(mut, m); err != nil {
		return Result{}, err
	}
	return Result{Match: m.Clone()}, nil
}

// closeRegistration runs when the registration window ends. An empty
// tournament is cancelled; anything else starts.
func (s *tournamentService) closeRegistration(ctx context.Context, mut *mutation) (Result, error) {
	t := mut.t
	if t.Status != models.StatusRegistration || mut.now.Before(t.RegistrationDeadline) {
		return Result{}, nil
	}
	if len(t.ActiveEntrants()) == 0 {
		s.cancelTournament(mut, "", "no entrants")
		return Result{}, nil
	}
	return s.activate(ctx, mut)
}

// syncTimers makes the scheduler match the aggregate: one timer per running
// match deadline plus the registration deadline.
func (s *tournamentService) syncTimers(w *worker) {
	t := w.tournament
	tournamentID := t.ID
	halted := t.Fault != ""

	regKey := registrationTimerKey(tournamentID)
	if t.Status == models.StatusRegistration && !halted {
		if at, _, ok := s.scheduler.Deadline(regKey); !ok || !at.Equal(t.RegistrationDeadline) {
			s.scheduler.Schedule(regKey, t.RegistrationDeadline, 0, func(uint64) {
				s.enqueue(w, closeRegistration{TournamentID: tournamentID})
			})
		}
	} else {
		s.scheduler.Cancel(regKey)
	}

	running := t.Status == models.StatusInProgress && !halted
	forEachMatch(t, func(m *models.Match) {
		if !running || m.State != models.MatchAwaitingChoices || m.Deadline == nil {
			s.scheduler.Cancel(m.ID)
			return
		}
		if _, token, ok := s.scheduler.Deadline(m.ID); ok && token == m.DeadlineToken {
			return
		}
		matchID := m.ID
		s.scheduler.Schedule(matchID, *m.Deadline, m.DeadlineToken, func(token uint64) {
			s.enqueue(w, expireMatch{MatchID: matchID, Token: token})
		})
	})
}

// enqueue is called from timer goroutines.
func (s *tournamentService) enqueue(w *worker, cmd Command) {
	if _, err := w.submit(context.Background(), cmd); err != nil && !errors.Is(err, ErrServiceStopped) {
		s.logger.Warn("timer command failed",
			slog.String("tournament_id", w.tournamentID()),
			slog.String("command", commandName(cmd)),
			slog.Any("error", err),
		)
	}
}

func (s *tournamentService) publish(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 || s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.WarnContext(ctx, "failed to publish tournament events",
			slog.Int("count", len(evts)),
			slog.Any("error", err),
		)
	}
}

func (s *tournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	s.mu.Lock()
	w, ok := s.workers[id]
	s.mu.Unlock()
	if ok {
		res, err := w.submit(ctx, snapshotQuery{TournamentID: id})
		if err != nil {
			return nil, err
		}
		return res.Tournament, nil
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, id)
		}
		return nil, persistenceError("load tournament "+id, err)
	}
	return t, nil
}

func (s *tournamentService) ActiveTournament(ctx context.Context, groupID string) (*models.Tournament, error) {
	s.mu.Lock()
	id, ok := s.byGroup[groupID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveTournament, groupID)
	}
	return s.GetTournament(ctx, id)
}

func (s *tournamentService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	s.mu.Lock()
	id, ok := s.matches[matchID]
	s.mu.Unlock()
	if !ok {
		if id, ok = tournamentIDFromMatch(matchID); !ok {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
	}
	t, err := s.GetTournament(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTournamentNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
		return nil, err
	}
	return findMatch(t, matchID)
}

func (s *tournamentService) Recover(ctx context.Context) (int, error) {
	ids, err := s.repo.ListActiveIDs(ctx)
	if err != nil {
		return 0, persistenceError("list active tournaments", err)
	}

	loaded := make([]*models.Tournament, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoveryGoroutines)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			t, err := s.repo.GetByID(gctx, id)
			if err != nil {
				return fmt.Errorf("load tournament %s: %w", id, err)
			}
			loaded[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, persistenceError("recover tournaments", err)
	}

	adopted := 0
	for _, t := range loaded {
		if t.Status.Terminal() {
			continue
		}
		if _, err := s.adopt(t); err != nil {
			s.logger.WarnContext(ctx, "skipping tournament during recovery",
				slog.String("tournament_id", t.ID),
				slog.Any("error", err),
			)
			continue
		}
		adopted++
	}
	s.logger.InfoContext(ctx, "tournaments recovered",
		slog.Int("stored", len(ids)),
		slog.Int("adopted", adopted),
	)
	return adopted, nil
}

func (s *tournamentService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.scheduler.Stop()
	for _, w := range s.workers {
		w.stop()
	}
}
