package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

type eligibilityBody struct {
	UsesTikTok  *bool  `json:"usesTikTok"`
	IsEnglish   *bool  `json:"isEnglish"`
	IsOver13    *bool  `json:"isOver13"`
	IsOver18    *bool  `json:"isOver18"`
	DateOfBirth string `json:"dateOfBirth"`
}

type userKeyBody struct {
	UserKey string `json:"userKey"`
}

type participantBody struct {
	ID       string `json:"id"`
	UserKey  string `json:"userKey"`
	IsOver18 *bool  `json:"isOver18"`
}

// POST /api/users
func (rt *Router) handleCreateParticipant(w http.ResponseWriter, r *http.Request) {
	var body eligibilityBody
	if !rt.decodeJSON(w, r, &body) {
		return
	}
	res, err := rt.participants.CheckEligibility(r.Context(), services.EligibilityRequest{
		UsesPlatform: body.UsesTikTok,
		IsEnglish:    body.IsEnglish,
		IsOver13:     body.IsOver13,
		IsOver18:     body.IsOver18,
		DateOfBirth:  body.DateOfBirth,
	})
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userKeyBody{UserKey: res.Key})
}

// POST /api/users/verify
func (rt *Router) handleVerifyParticipant(w http.ResponseWriter, r *http.Request) {
	var body userKeyBody
	if !rt.decodeJSON(w, r, &body) {
		return
	}
	p, err := rt.participants.Verify(r.Context(), body.UserKey)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userKeyBody{UserKey: p.Key})
}

// GET /api/users/{userKey}
func (rt *Router) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := rt.participants.Verify(r.Context(), chi.URLParam(r, "userKey"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantBody{ID: p.ID, UserKey: p.Key, IsOver18: p.IsOver18})
}
