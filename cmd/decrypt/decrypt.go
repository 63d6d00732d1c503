package main

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

// decryptedSubmission is one submission with its activity lists in plaintext.
type decryptedSubmission struct {
	ID        string                    `json:"id"`
	Score     int                       `json:"score"`
	VideoList []services.ActivityRecord `json:"videoList"`
	LikedList []services.ActivityRecord `json:"likedList"`
}

// decryptExport reads either the /api/research/submissions response or a
// bare array of submissions.
func decryptExport(r io.Reader, priv *rsa.PrivateKey) ([]decryptedSubmission, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var subs []*services.Submission
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &subs)
	} else {
		var export struct {
			Submissions []*services.Submission `json:"submissions"`
		}
		err = json.Unmarshal(data, &export)
		subs = export.Submissions
	}
	if err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}

	out := make([]decryptedSubmission, 0, len(subs))
	for _, s := range subs {
		video, err := services.DecryptRecords(priv, s.VideoPayload)
		if err != nil {
			return nil, fmt.Errorf("submission %s video list: %w", s.ID, err)
		}
		liked, err := services.DecryptRecords(priv, s.LikedPayload)
		if err != nil {
			return nil, fmt.Errorf("submission %s liked list: %w", s.ID, err)
		}
		out = append(out, decryptedSubmission{ID: s.ID, Score: s.Score, VideoList: video, LikedList: liked})
	}
	return out, nil
}
