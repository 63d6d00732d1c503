package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

const (
	multipartMemory   = 8 << 20
	requestFormField  = "request"
	activityFormField = "activityFile"
)

type submissionResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId"`
	Score        int    `json:"score"`
}

// POST /api/surveys takes either a JSON body of any request version, or a
// multipart form with the request JSON in "request" and the export file in
// "activityFile".
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var (
		req *services.SubmissionRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = rt.decodeMultipart(w, r)
	} else {
		body, ok := rt.readBody(w, r)
		if !ok {
			return
		}
		req, err = services.DecodeSubmissionRequest(body)
	}
	if err != nil {
		if _, ok := services.AsServiceError(err); !ok {
			rt.writeReadError(w, err)
			return
		}
		rt.writeError(w, err)
		return
	}

	res, err := rt.submissions.Submit(r.Context(), req)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submissionResponse{Success: true, SubmissionID: res.ID, Score: res.Score})
}

func (rt *Router) decodeMultipart(w http.ResponseWriter, r *http.Request) (*services.SubmissionRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	raw := r.FormValue(requestFormField)
	if strings.TrimSpace(raw) == "" {
		return nil, services.NewValidationError("Missing or invalid required fields.", map[string]string{
			requestFormField: "required",
		})
	}
	req, err := services.DecodeSubmissionRequest([]byte(raw))
	if err != nil {
		return nil, err
	}

	file, header, err := r.FormFile(activityFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		return nil, services.NewValidationError("Missing or invalid required fields.", map[string]string{
			services.FieldActivity: "the activity export must be a .json file",
		})
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	req.Activity.File = data
	req.Activity.Document = nil
	return req, nil
}
