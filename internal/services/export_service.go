package services

import "context"

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportCSV renders every stored submission as CSV for download.
func (s *ResearchService) ExportCSV(ctx context.Context) (*ExportResult, error) {
	subs, err := s.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	b, err := ExportSubmissionsCSV(subs)
	if err != nil {
		s.log.WithError(err).Error("render submissions csv")
		return nil, NewStorageError("render submissions csv", err)
	}
	return &ExportResult{
		Filename:    "submissions-" + s.now().Format("20060102") + ".csv",
		ContentType: "text/csv; charset=utf-8",
		Data:        b,
	}, nil
}
