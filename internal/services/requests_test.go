package services

import "testing"

func decodeField(t *testing.T, body string) map[string]string {
	t.Helper()
	_, err := DecodeSubmissionRequest([]byte(body))
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("%s: expected validation error, got %v", body, err)
	}
	return se.Fields
}

func TestDecodeVersion1(t *testing.T) {
	req, err := DecodeSubmissionRequest([]byte(`{
		"userKey": "abc123",
		"phq9Score": 12,
		"videoList": [{"Date": "2025-01-01 10:00:00", "Link": "https://x"}],
		"agreedTerms": true
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Version != RequestV1 || req.Key != "abc123" || req.Score == nil || *req.Score != 12 {
		t.Fatalf("unexpected request: %+v", req)
	}
	export, err := NewExtractor(ExtractorConfig{TargetYear: 2025}).Extract(req.Activity.Document)
	if err != nil {
		t.Fatalf("extract wrapped video list: %v", err)
	}
	if len(export.VideoList) != 1 {
		t.Fatalf("unexpected videos: %+v", export.VideoList)
	}

	if f := decodeField(t, `{"userKey":"a","phq9Score":12.5}`); f["score"] == "" {
		t.Fatalf("fractional score should fail: %+v", f)
	}
	if f := decodeField(t, `{"userKey":"a"}`); f["score"] == "" {
		t.Fatalf("missing score should fail: %+v", f)
	}
}

func TestDecodeVersion2InjectsLikedList(t *testing.T) {
	req, err := DecodeSubmissionRequest([]byte(`{
		"version": 2,
		"userKey": "abc123",
		"answers": [0,1,2,3,0,1,2,3,0],
		"tiktokData": {"Activity": {"Video Browsing History": {"VideoList": [{"Date": "2025-01-01 10:00:00", "Link": "https://x"}]}}},
		"likedList": [{"date": "2025-02-02 10:00:00", "link": "https://l"}],
		"agreedTerms": true,
		"age": 16,
		"gender": " male "
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Instrument != PHQ9.Name || len(req.Answers) != 9 || req.Demographics.Gender != "male" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Demographics.Age == nil || *req.Demographics.Age != 16 {
		t.Fatalf("age not decoded")
	}
	export, err := NewExtractor(ExtractorConfig{TargetYear: 2025, RequireLikedList: true}).Extract(req.Activity.Document)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(export.LikedList) != 1 || export.LikedList[0].Link != "https://l" {
		t.Fatalf("liked list not injected: %+v", export.LikedList)
	}
}

func TestDecodeVersion3ActivityFile(t *testing.T) {
	asObject, err := DecodeSubmissionRequest([]byte(`{
		"version": 3,
		"key": "abc123",
		"instrument": " promis_depression_8a ",
		"answers": [1,1,1,1,1,1,1,1],
		"activity": {"file": {"Activity": {}}},
		"consentReceipt": " tok ",
		"demographics": {"age": 30},
		"submittedAt": "2025-09-18T10:00:00-04:00",
		"timezone": "America/New_York"
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if asObject.Instrument != PROMISDepression8.Name || asObject.ConsentReceipt != "tok" {
		t.Fatalf("unexpected request: %+v", asObject)
	}
	if string(asObject.Activity.File) != `{"Activity": {}}` {
		t.Fatalf("file object not kept: %s", asObject.Activity.File)
	}
	if asObject.SubmittedAt == nil || asObject.SubmittedAt.UTC().Hour() != 14 {
		t.Fatalf("submittedAt not decoded: %v", asObject.SubmittedAt)
	}

	asText, err := DecodeSubmissionRequest([]byte(`{"version":3,"activity":{"file":"{\"Activity\":{}}"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(asText.Activity.File) != `{"Activity":{}}` {
		t.Fatalf("file text not unquoted: %s", asText.Activity.File)
	}

	manual, err := DecodeSubmissionRequest([]byte(`{"version":3,"activity":{"file":null,"videoText":"[]","likedText":"[]"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if manual.Activity.File != nil || manual.Activity.VideoText != "[]" {
		t.Fatalf("unexpected manual activity: %+v", manual.Activity)
	}
}

func TestDecodeRejections(t *testing.T) {
	cases := map[string]string{
		`{"version":9}`:                              "version",
		`{"version":"3"}`:                            "version",
		`{"version":3,"answers":"all"}`:              "answers",
		`{"version":3,"demographics":{"age":"ten"}}`: "age",
		`{"version":2,"userKey":5}`:                  "key",
		`{"version":2,"tiktokData":[1}`:              "body",
		`{"userKey":"a","phq9Score":"12"}`:           "score",
		`{"userKey":"a","agreedExtra":"yes"}`:        "extraTerms",
		`not json`:                                   "body",
	}
	for body, field := range cases {
		if f := decodeField(t, body); f[field] == "" {
			t.Fatalf("%s: expected %s error, got %+v", body, field, f)
		}
	}
}
