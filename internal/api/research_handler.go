package api

import (
	"net/http"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

type submissionsResponse struct {
	Count       int                    `json:"count"`
	Submissions []*services.Submission `json:"submissions"`
}

// GET /api/research/submissions
func (rt *Router) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := rt.research.ListSubmissions(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionsResponse{Count: len(subs), Submissions: subs})
}

// GET /api/research/submissions.csv
func (rt *Router) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	res, err := rt.research.ExportCSV(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// GET /api/research/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := rt.research.Summary(r.Context())
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
