package handlers

import (
	"net/http"

	"github.com/Dosada05/rps-tournament-bot/models"
	"github.com/Dosada05/rps-tournament-bot/services"
)

// GetMatchHandler handles GET /matches/{matchID}
func (h *TournamentHandler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	m, err := h.tournamentService.GetMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, actor, services.Result{Match: m})
}

type choiceInput struct {
	Choice string `json:"choice"`
}

// SubmitChoiceHandler handles POST /matches/{matchID}/choices
func (h *TournamentHandler) SubmitChoiceHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input choiceInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	choice, err := models.ParseChoice(input.Choice)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	h.dispatch(w, r, actor, http.StatusOK, services.SubmitChoice{
		MatchID:  matchID,
		PlayerID: actor.ID,
		Choice:   choice,
	})
}

type forfeitInput struct {
	// PlayerID defaults to the caller; naming someone else needs admin.
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
}

// ForfeitHandler handles POST /matches/{matchID}/forfeit
func (h *TournamentHandler) ForfeitHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input forfeitInput
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.PlayerID == "" {
		input.PlayerID = actor.ID
	}

	h.dispatch(w, r, actor, http.StatusOK, services.Forfeit{
		MatchID:  matchID,
		PlayerID: input.PlayerID,
		Reason:   input.Reason,
		Actor:    actor,
	})
}

type resultInput struct {
	WinnerID string `json:"winner_id"`
	Reason   string `json:"reason"`
}

// ForceResultHandler handles POST /matches/{matchID}/result
func (h *TournamentHandler) ForceResultHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input resultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	h.dispatch(w, r, actor, http.StatusOK, services.ForceMatchResult{
		MatchID:  matchID,
		WinnerID: input.WinnerID,
		Actor:    actor,
		Reason:   input.Reason,
	})
}
