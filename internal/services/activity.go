package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Field names reported when activity extraction fails.
const (
	FieldVideoList = "videoList"
	FieldLikedList = "likedList"
	FieldActivity  = "activity"
)

// Keys of the platform's data export.
const (
	exportActivityKey  = "Activity"
	exportVideoSection = "Video Browsing History"
	exportVideoListKey = "VideoList"
	exportLikeSection  = "Like List"
	exportLikedListKey = "ItemFavoriteList"
	videoDateKey       = "Date"
	videoLinkKey       = "Link"
	likedDateKey       = "date"
	likedLinkKey       = "link"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var activityDateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ActivityRecord is one minimized view or like event.
type ActivityRecord struct {
	Date string `json:"date"`
	Link string `json:"link"`
}

// recordKeys names the timestamp and link fields of one export list.
// The view list capitalizes them, the like list does not.
type recordKeys struct {
	date string
	link string
}

var (
	videoKeys = recordKeys{date: videoDateKey, link: videoLinkKey}
	likedKeys = recordKeys{date: likedDateKey, link: likedLinkKey}
)

// MinimizeRecord reduces a raw export item to its timestamp and link. Every
// other field is dropped.
func MinimizeRecord(item map[string]any, dateKey, linkKey string) (ActivityRecord, error) {
	date, err := stringField(item, dateKey)
	if err != nil {
		return ActivityRecord{}, err
	}
	link, err := stringField(item, linkKey)
	if err != nil {
		return ActivityRecord{}, err
	}
	return minimal(date, link), nil
}

// MinimizeRecords re-applies minimization to already typed records.
func MinimizeRecords(records []ActivityRecord) []ActivityRecord {
	out := make([]ActivityRecord, 0, len(records))
	for _, r := range records {
		out = append(out, minimal(r.Date, r.Link))
	}
	return out
}

func minimal(date, link string) ActivityRecord {
	return ActivityRecord{Date: strings.TrimSpace(date), Link: strings.TrimSpace(link)}
}

func stringField(item map[string]any, key string) (string, error) {
	raw, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%q must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%q is empty", key)
	}
	return s, nil
}

// ParseActivityDate accepts the timestamp formats seen in exports. Zone-less
// timestamps are read as UTC.
func ParseActivityDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range activityDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ExtractionError reports why an export was rejected. Field is one of
// FieldVideoList, FieldLikedList or FieldActivity.
type ExtractionError struct {
	Field  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return e.Field + ": " + e.Reason
}

func rejectf(field, format string, args ...any) error {
	return &ExtractionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ActivityExport holds the two canonical lists extracted from an export.
type ActivityExport struct {
	VideoList []ActivityRecord `json:"videoList"`
	LikedList []ActivityRecord `json:"likedList"`
}

// Document rebuilds the export shape from canonical lists, as a decoded JSON value.
func (a *ActivityExport) Document() map[string]any {
	return map[string]any{
		exportActivityKey: map[string]any{
			exportVideoSection: map[string]any{
				exportVideoListKey: recordsToItems(a.VideoList, videoKeys),
			},
			exportLikeSection: map[string]any{
				exportLikedListKey: recordsToItems(a.LikedList, likedKeys),
			},
		},
	}
}

func recordsToItems(records []ActivityRecord, keys recordKeys) []any {
	items := make([]any, 0, len(records))
	for _, r := range records {
		items = append(items, map[string]any{keys.date: r.Date, keys.link: r.Link})
	}
	return items
}

type ExtractorConfig struct {
	TargetYear       int
	RequireLikedList bool
}

// Extractor validates, filters and minimizes activity exports. Uploaded files
// and pasted lists go through the same core.
type Extractor struct {
	cfg ExtractorConfig
}

func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

func (x *Extractor) Config() ExtractorConfig { return x.cfg }

// ExtractFile parses uploaded export text. A leading UTF-8 BOM is ignored.
func (x *Extractor) ExtractFile(data []byte) (*ActivityExport, error) {
	doc, err := decodeJSON(data)
	if err != nil {
		return nil, rejectf(FieldActivity, "file is not valid JSON: %v", err)
	}
	return x.Extract(doc)
}

// Extract walks a decoded export document.
func (x *Extractor) Extract(doc any) (*ActivityExport, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, rejectf(FieldActivity, "export must be a JSON object, got %s", jsonType(doc))
	}
	activity, ok := root[exportActivityKey].(map[string]any)
	if !ok {
		return nil, rejectf(FieldActivity, "export has no %q object", exportActivityKey)
	}
	video, videoFound := section(activity, exportVideoSection, exportVideoListKey)
	liked, likedFound := section(activity, exportLikeSection, exportLikedListKey)
	return x.build(video, videoFound, liked, likedFound)
}

// ExtractManual parses pasted list text. Each text may be the bare array, the
// object wrapping it, or a whole export. When likedText is empty and videoText
// is a whole export, the export's own like list is used.
func (x *Extractor) ExtractManual(videoText, likedText string) (*ActivityExport, error) {
	if strings.TrimSpace(videoText) == "" {
		return nil, rejectf(FieldVideoList, "video list is required")
	}
	video, videoFound, err := manualList([]byte(videoText), exportVideoSection, exportVideoListKey)
	if err != nil {
		return nil, rejectf(FieldVideoList, "%v", err)
	}
	var liked any
	likedFound := false
	if strings.TrimSpace(likedText) != "" {
		liked, likedFound, err = manualList([]byte(likedText), exportLikeSection, exportLikedListKey)
		if err != nil {
			return nil, rejectf(FieldLikedList, "%v", err)
		}
	} else {
		liked, likedFound = embeddedLikes([]byte(videoText))
	}
	return x.build(video, videoFound, liked, likedFound)
}

func manualList(text []byte, sectionKey, listKey string) (any, bool, error) {
	doc, err := decodeJSON(text)
	if err != nil {
		return nil, false, fmt.Errorf("not valid JSON: %v", err)
	}
	switch v := doc.(type) {
	case []any:
		return v, true, nil
	case map[string]any:
		if list, ok := v[listKey]; ok {
			return list, true, nil
		}
		if activity, ok := v[exportActivityKey].(map[string]any); ok {
			list, found := section(activity, sectionKey, listKey)
			return list, found, nil
		}
		if sec, ok := v[sectionKey].(map[string]any); ok {
			list, found := sec[listKey]
			return list, found, nil
		}
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("expected an array or object, got %s", jsonType(doc))
	}
}

// embeddedLikes returns the like list of a whole export pasted as video text.
func embeddedLikes(text []byte) (any, bool) {
	doc, err := decodeJSON(text)
	if err != nil {
		return nil, false
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	activity, ok := root[exportActivityKey].(map[string]any)
	if !ok {
		return nil, false
	}
	return section(activity, exportLikeSection, exportLikedListKey)
}

func section(activity map[string]any, sectionKey, listKey string) (any, bool) {
	sec, ok := activity[sectionKey].(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := sec[listKey]
	return list, ok
}

func (x *Extractor) build(video any, videoFound bool, liked any, likedFound bool) (*ActivityExport, error) {
	if !videoFound || video == nil {
		return nil, rejectf(FieldVideoList, "%s is missing", exportVideoListKey)
	}
	videoList, err := x.filterList(video, videoKeys, FieldVideoList, exportVideoListKey)
	if err != nil {
		return nil, err
	}
	if len(videoList) == 0 {
		return nil, rejectf(FieldVideoList, "no entries from %d", x.cfg.TargetYear)
	}

	likedList := []ActivityRecord{}
	switch {
	case likedFound && liked != nil:
		if likedList, err = x.filterList(liked, likedKeys, FieldLikedList, exportLikedListKey); err != nil {
			return nil, err
		}
	case x.cfg.RequireLikedList:
		return nil, rejectf(FieldLikedList, "%s is missing", exportLikedListKey)
	}
	return &ActivityExport{VideoList: videoList, LikedList: likedList}, nil
}

func (x *Extractor) filterList(raw any, keys recordKeys, field, name string) ([]ActivityRecord, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, rejectf(field, "%s must be an array, got %s", name, jsonType(raw))
	}
	out := make([]ActivityRecord, 0, len(items))
	for i, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, rejectf(field, "item %d must be an object, got %s", i, jsonType(it))
		}
		rec, err := MinimizeRecord(obj, keys.date, keys.link)
		if err != nil {
			return nil, rejectf(field, "item %d: %v", i, err)
		}
		ts, err := ParseActivityDate(rec.Date)
		if err != nil {
			return nil, rejectf(field, "item %d: %v", i, err)
		}
		if ts.Year() != x.cfg.TargetYear {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeJSON(data []byte) (any, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return doc, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// PayloadKind tags how an activity list is persisted.
type PayloadKind string

const (
	PayloadPlain     PayloadKind = "plain"
	PayloadEncrypted PayloadKind = "encrypted"
)

// ActivityPayload is the persisted form of one activity list: either the
// minimized records or the ordered ciphertext chunks.
type ActivityPayload struct {
	Kind    PayloadKind
	Records []ActivityRecord
	Chunks  []string
}

func PlainPayload(records []ActivityRecord) ActivityPayload {
	if records == nil {
		records = []ActivityRecord{}
	}
	return ActivityPayload{Kind: PayloadPlain, Records: records}
}

func EncryptedPayload(chunks []string) ActivityPayload {
	if chunks == nil {
		chunks = []string{}
	}
	return ActivityPayload{Kind: PayloadEncrypted, Chunks: chunks}
}

type plainPayloadJSON struct {
	Kind    PayloadKind      `json:"kind"`
	Records []ActivityRecord `json:"records"`
}

type encryptedPayloadJSON struct {
	Kind   PayloadKind `json:"kind"`
	Chunks []string    `json:"chunks"`
}

func (p ActivityPayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadPlain:
		return json.Marshal(plainPayloadJSON{Kind: p.Kind, Records: PlainPayload(p.Records).Records})
	case PayloadEncrypted:
		return json.Marshal(encryptedPayloadJSON{Kind: p.Kind, Chunks: EncryptedPayload(p.Chunks).Chunks})
	default:
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

func (p *ActivityPayload) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind    PayloadKind      `json:"kind"`
		Records []ActivityRecord `json:"records"`
		Chunks  []string         `json:"chunks"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Kind {
	case PayloadPlain:
		*p = PlainPayload(probe.Records)
	case PayloadEncrypted:
		*p = EncryptedPayload(probe.Chunks)
	default:
		return fmt.Errorf("unknown payload kind %q", probe.Kind)
	}
	return nil
}

// Len is the number of records or chunks held.
func (p ActivityPayload) Len() int {
	if p.Kind == PayloadEncrypted {
		return len(p.Chunks)
	}
	return len(p.Records)
}
