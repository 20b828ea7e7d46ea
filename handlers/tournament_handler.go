package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/rps-tournament-bot/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
	logger            *slog.Logger
}

func NewTournamentHandler(ts services.TournamentService, logger *slog.Logger) *TournamentHandler {
	return &TournamentHandler{
		tournamentService: ts,
		logger:            logger,
	}
}

type createTournamentInput struct {
	GroupID  string `json:"group_id"`
	Capacity int    `json:"capacity"`
	// RegistrationWindow is a Go duration string such as "5m".
	RegistrationWindow string `json:"registration_window"`
}

// CreateHandler handles POST /tournaments
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var input createTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var window time.Duration
	if input.RegistrationWindow != "" {
		d, err := time.ParseDuration(input.RegistrationWindow)
		if err != nil {
			badRequestResponse(w, r, fmt.Errorf("invalid registration_window: %w", err))
			return
		}
		if d <= 0 {
			badRequestResponse(w, r, errors.New("registration_window must be positive"))
			return
		}
		window = d
	}

	res, err := h.tournamentService.Dispatch(r.Context(), services.CreateTournament{
		GroupID:            input.GroupID,
		Capacity:           input.Capacity,
		RegistrationWindow: window,
		Actor:              actor,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	h.respond(w, r, http.StatusCreated, actor, res)
}

// GetByIDHandler handles GET /tournaments/{tournamentID}
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	t, err := h.tournamentService.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, actor, services.Result{Tournament: t})
}

// ActiveForGroupHandler handles GET /groups/{groupID}/tournament
func (h *TournamentHandler) ActiveForGroupHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	groupID, err := getIDFromURL(r, "groupID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	t, err := h.tournamentService.ActiveTournament(r.Context(), groupID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, actor, services.Result{Tournament: t})
}

type joinInput struct {
	DisplayName string `json:"display_name"`
}

// JoinHandler handles POST /tournaments/{tournamentID}/players
func (h *TournamentHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input joinInput
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.DisplayName == "" {
		input.DisplayName = actor.ID
	}

	h.dispatch(w, r, actor, http.StatusCreated, services.Join{
		TournamentID: id,
		PlayerID:     actor.ID,
		DisplayName:  input.DisplayName,
	})
}

// LeaveHandler handles POST /tournaments/{tournamentID}/leave
func (h *TournamentHandler) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.dispatch(w, r, actor, http.StatusOK, services.Leave{TournamentID: id, PlayerID: actor.ID})
}

// RemovePlayerHandler handles DELETE /tournaments/{tournamentID}/players/{playerID}
func (h *TournamentHandler) RemovePlayerHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := getIDFromURL(r, "playerID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.dispatch(w, r, actor, http.StatusOK, services.RemovePlayer{TournamentID: id, PlayerID: playerID, Actor: actor})
}

// LifecycleHandler handles the admin transitions that take no body:
// POST /tournaments/{tournamentID}/activate, /pause and /resume.
func (h *TournamentHandler) LifecycleHandler(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, err := getIDFromURL(r, "tournamentID")
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}

		var cmd services.Command
		switch action {
		case "activate":
			cmd = services.Activate{TournamentID: id, Actor: actor}
		case "pause":
			cmd = services.Pause{TournamentID: id, Actor: actor}
		case "resume":
			cmd = services.Resume{TournamentID: id, Actor: actor}
		default:
			serverErrorResponse(w, r, fmt.Errorf("unknown lifecycle action %q", action))
			return
		}
		h.dispatch(w, r, actor, http.StatusOK, cmd)
	}
}

type cancelInput struct {
	Reason string `json:"reason"`
}

// CancelHandler handles POST /tournaments/{tournamentID}/cancel
func (h *TournamentHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input cancelInput
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.dispatch(w, r, actor, http.StatusOK, services.Cancel{TournamentID: id, Actor: actor, Reason: input.Reason})
}

type seedsInput struct {
	PlayerIDs []string `json:"player_ids"`
}

// ReorderSeedsHandler handles PUT /tournaments/{tournamentID}/seeds
func (h *TournamentHandler) ReorderSeedsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input seedsInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	h.dispatch(w, r, actor, http.StatusOK, services.ReorderSeeds{TournamentID: id, PlayerIDs: input.PlayerIDs, Actor: actor})
}

func (h *TournamentHandler) dispatch(w http.ResponseWriter, r *http.Request, actor services.Actor, status int, cmd services.Command) {
	res, err := h.tournamentService.Dispatch(r.Context(), cmd)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, status, actor, res)
}

func (h *TournamentHandler) respond(w http.ResponseWriter, r *http.Request, status int, actor services.Actor, res services.Result) {
	body := jsonResponse{}
	if res.Tournament != nil {
		body["tournament"] = redactTournament(res.Tournament, actor.ID)
	}
	if res.Match != nil {
		body["match"] = redactMatch(res.Match, actor.ID)
	}
	if res.Choice != "" {
		body["choice"] = res.Choice
		body["duplicate"] = res.Duplicate
	}
	if err := writeJSON(w, status, body, nil); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write response", slog.Any("error", err))
	}
}
