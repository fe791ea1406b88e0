package usecase

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

// ParseReport counts what the parser threw away
type ParseReport struct {
	Malformed bool // Payload had no usable results array
	Dropped   int  // Entries rejected by validation
}

// ParseBatchResponse turns raw provider output into a validated batch result.
// It never fails: anything that cannot be parsed yields an empty result, and
// entries that reference messages outside submittedIDs are dropped.
func ParseBatchResponse(raw string, submittedIDs []int64) domain.BatchClassificationResult {
	result, _ := parseBatchResponse(raw, submittedIDs)
	return result
}

func parseBatchResponse(raw string, submittedIDs []int64) (domain.BatchClassificationResult, ParseReport) {
	out := domain.BatchClassificationResult{Results: []domain.ClassificationResult{}}
	var report ParseReport

	if strings.TrimSpace(raw) == "" {
		return out, report
	}

	payload, ok := decodeObject(extractObject(raw))
	if !ok {
		report.Malformed = true
		return out, report
	}
	entries, ok := payload["results"].([]any)
	if !ok {
		report.Malformed = true
		return out, report
	}

	submitted := make(map[int64]bool, len(submittedIDs))
	for _, id := range submittedIDs {
		submitted[id] = true
	}
	seen := make(map[int64]bool, len(entries))

	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			report.Dropped++
			continue
		}
		r, ok := parseEntry(obj, submitted)
		if !ok || seen[r.MessageID] {
			report.Dropped++
			continue
		}
		seen[r.MessageID] = true
		out.Results = append(out.Results, r)
	}
	return out, report
}

// extractObject returns the outermost {...} span of s
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// decodeObject decodes strict JSON first, then falls back to JSON5 for
// trailing commas, comments and single-quoted strings
func decodeObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&obj); err == nil && obj != nil {
		return obj, true
	}

	obj = nil
	if err := json5.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		return obj, true
	}
	return nil, false
}

func parseEntry(obj map[string]any, submitted map[int64]bool) (domain.ClassificationResult, bool) {
	var r domain.ClassificationResult

	id, ok := toInt64(obj["messageId"])
	if !ok || !submitted[id] {
		return r, false
	}
	r.MessageID = id

	switch c := obj["classification"].(type) {
	case map[string]any:
		t, ok := c["type"].(string)
		if !ok {
			return r, false
		}
		if r.Classification.Type, ok = domain.ParseClassificationType(t); !ok {
			return r, false
		}
		r.Classification.RequiresResponse = toBool(c["requiresResponse"])
	case string:
		// Flat form: "classification": "violation", "requiresResponse": true
		if r.Classification.Type, ok = domain.ParseClassificationType(c); !ok {
			return r, false
		}
		r.Classification.RequiresResponse = toBool(obj["requiresResponse"])
	default:
		return r, false
	}

	action := ""
	if v, present := obj["moderationAction"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return r, false
		}
		action = s
	}
	if r.ModerationAction, ok = domain.ParseModerationAction(action); !ok {
		return r, false
	}

	if s, ok := obj["responseText"].(string); ok {
		r.ResponseText = strings.TrimSpace(s)
	}

	if v, present := obj["targetUserId"]; present && v != nil {
		uid, ok := toInt64(v)
		if !ok {
			return r, false
		}
		r.TargetUserID = &uid
	}

	if v, present := obj["targetMessageId"]; present && v != nil {
		mid, ok := toInt64(v)
		if !ok || !submitted[mid] {
			return r, false
		}
		r.TargetMessageID = &mid
	}

	if v, present := obj["durationMinutes"]; present && v != nil {
		d, ok := toInt64(v)
		if !ok || d <= 0 || d > math.MaxInt32 {
			return r, false
		}
		minutes := int(d)
		r.DurationMinutes = &minutes
	}

	return r, true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	}
	return false
}
