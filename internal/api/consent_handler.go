package api

import (
	"net/http"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

type consentBody struct {
	ParticipantName string `json:"participantName"`
	Signature       string `json:"signature"`
	SignatureDate   string `json:"signatureDate"`
	IsMinor         bool   `json:"isMinor"`
	ParentName      string `json:"parentName"`
	ParentSignature string `json:"parentSignature"`
	ParentDate      string `json:"parentDate"`
}

type consentResponse struct {
	Success bool   `json:"success"`
	Receipt string `json:"receipt,omitempty"`
}

// POST /api/consent
func (rt *Router) handleConsent(w http.ResponseWriter, r *http.Request) {
	var body consentBody
	if !rt.decodeJSON(w, r, &body) {
		return
	}
	res, err := rt.consents.Sign(r.Context(), services.ConsentRequest{
		ParticipantName: body.ParticipantName,
		Signature:       body.Signature,
		SignatureDate:   body.SignatureDate,
		IsMinor:         body.IsMinor,
		ParentName:      body.ParentName,
		ParentSignature: body.ParentSignature,
		ParentDate:      body.ParentDate,
	})
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, consentResponse{Success: true, Receipt: res.Receipt})
}
