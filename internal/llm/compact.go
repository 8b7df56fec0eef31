package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

// Shape is the response layout the decoder recognised.
type Shape string

const (
	ShapeCompact      Shape = "compact"       // {"e":[{"s":..},..]}
	ShapeVerboseArray Shape = "verbose_array" // {"entries":[..]} or [..]
	ShapeLegacySingle Shape = "legacy_single" // {"title":..,"activity_content":..}
)

// CompactArrayKey holds the entry list in the compact format.
const CompactArrayKey = "e"

// compactKeys maps every abbreviated key to its canonical field name.
var compactKeys = map[string]string{
	"s":  "semester",
	"c":  "category_main",
	"ct": "changche_type",
	"cs": "changche_sub",
	"gt": "gyogwa_type",
	"gs": "gyogwa_sub",
	"gn": "gyogwa_subject_name",
	"bh": "bongsa_hours",
	"t":  "title",
	"ac": "activity_content",
	"co": "conclusion",
	"rp": "research_plan",
	"ra": "reading_activities",
	"ec": "evaluation_competency",
}

var verboseArrayKeys = []string{"entries", "activities", "records", "items"}

// Decoded is the outcome of parsing one model response.
type Decoded struct {
	Entries  []Entry
	Shape    Shape
	Repaired bool
	Skipped  int // items without any title or content

	// Violations lists kept entries whose raw values failed EntryJSONSchema.
	Violations []Violation
}

// DecodeEntries parses a model response into canonical entries.
func DecodeEntries(raw []byte) ([]Entry, error) {
	d, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return d.Entries, nil
}

// Decode tries the compact array, then a verbose array, then the legacy
// single-object layout. Unparseable input goes through RepairTruncatedJSON once.
func Decode(raw []byte) (Decoded, error) {
	body := stripFences(raw)
	if len(body) == 0 {
		return Decoded{}, common.NewAppError("EMPTY_RESPONSE", "AI 응답이 비어있습니다.", common.ErrEmptyResponse)
	}

	var (
		root     any
		repaired bool
	)
	if err := json.Unmarshal(body, &root); err != nil {
		fixed := RepairTruncatedJSON(body)
		if err2 := json.Unmarshal(fixed, &root); err2 != nil {
			return Decoded{}, common.NewAppError("MALFORMED_RESPONSE", "AI 응답을 해석할 수 없습니다.",
				fmt.Errorf("%w: %v (after repair: %v)", common.ErrMalformedResponse, err, err2))
		}
		repaired = true
	}

	items, shape, err := splitShape(root)
	if err != nil {
		return Decoded{}, err
	}

	out := Decoded{Shape: shape, Repaired: repaired}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out.Skipped++
			continue
		}
		if shape == ShapeCompact || (shape == ShapeVerboseArray && looksCompact(m)) {
			m = ExpandCompactKeys(m)
		}
		schemaErr := ValidateEntry(m)
		e := NormalizeEntry(entryFromMap(m))
		if e.Title == "" && e.ActivityContent == "" {
			out.Skipped++
			continue
		}
		if schemaErr != nil {
			out.Violations = append(out.Violations, Violation{
				Index:  len(out.Entries),
				Title:  e.Title,
				Detail: schemaErr.Error(),
			})
		}
		out.Entries = append(out.Entries, e)
	}

	if len(out.Entries) == 0 {
		return out, common.NewAppError("NO_ENTRIES", "문서에서 활동 내용을 찾지 못했습니다.", common.ErrNoEntriesExtracted)
	}
	return out, nil
}

func splitShape(root any) ([]any, Shape, error) {
	switch v := root.(type) {
	case []any:
		return v, ShapeVerboseArray, nil
	case map[string]any:
		if arr, ok := v[CompactArrayKey].([]any); ok {
			return arr, ShapeCompact, nil
		}
		for _, k := range verboseArrayKeys {
			if arr, ok := v[k].([]any); ok {
				return arr, ShapeVerboseArray, nil
			}
		}
		if _, ok := v["title"]; ok {
			return []any{v}, ShapeLegacySingle, nil
		}
		if _, ok := v["activity_content"]; ok {
			return []any{v}, ShapeLegacySingle, nil
		}
		if looksCompact(v) {
			return []any{v}, ShapeCompact, nil
		}
		return nil, "", common.NewAppError("NO_ENTRIES", "문서에서 활동 내용을 찾지 못했습니다.", common.ErrNoEntriesExtracted)
	default:
		return nil, "", common.NewAppError("MALFORMED_RESPONSE", "AI 응답 형식이 올바르지 않습니다.",
			fmt.Errorf("%w: top-level %T", common.ErrMalformedResponse, root))
	}
}

// looksCompact reports whether m uses abbreviated keys rather than full names.
func looksCompact(m map[string]any) bool {
	compact, verbose := 0, 0
	for k := range m {
		if _, ok := compactKeys[k]; ok {
			compact++
		}
		switch k {
		case "title", "semester", "category_main", "activity_content":
			verbose++
		}
	}
	return compact > 0 && verbose == 0
}

// ExpandCompactKeys renames abbreviated keys. Keys that are already canonical
// are kept; a canonical key wins over its abbreviation.
func ExpandCompactKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if full, ok := compactKeys[k]; ok {
			if _, exists := m[full]; exists {
				continue
			}
			out[full] = v
			continue
		}
		out[k] = v
	}
	return out
}

// ExpandCompact turns one compact object into a canonical entry with every
// absent field at its default.
func ExpandCompact(m map[string]any) Entry {
	return NormalizeEntry(entryFromMap(ExpandCompactKeys(m)))
}

func entryFromMap(m map[string]any) Entry {
	var e Entry
	e.Semester = asString(m["semester"])
	e.CategoryMain = asString(m["category_main"])
	e.ChangcheType = asOptString(m["changche_type"])
	e.ChangcheSub = asString(m["changche_sub"])
	e.GyogwaType = asOptString(m["gyogwa_type"])
	e.GyogwaSub = asString(m["gyogwa_sub"])
	e.GyogwaSubjectName = asString(m["gyogwa_subject_name"])
	e.BongsaHours = asOptFloat(m["bongsa_hours"])
	e.Title = asString(m["title"])
	e.ActivityContent = asString(m["activity_content"])
	e.Conclusion = asString(m["conclusion"])
	e.ResearchPlan = asString(m["research_plan"])
	e.ReadingActivities = asString(m["reading_activities"])
	e.EvaluationCompetency = asString(m["evaluation_competency"])
	return e
}

// NormalizeEntry applies the taxonomy rules of entity.Classification and trims content.
func NormalizeEntry(e Entry) Entry {
	return Entry{
		Classification:  e.Classification.Normalize(),
		AnalysisContent: e.AnalysisContent.Trim(),
	}
}

// stripFences removes a ```json fence some models wrap around JSON mode output.
func stripFences(raw []byte) []byte {
	b := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	}
	b = bytes.TrimSpace(b)
	b = bytes.TrimSuffix(b, []byte("```"))
	return bytes.TrimSpace(b)
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			if s := asString(x); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func asOptString(v any) *string {
	s := asString(v)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func asOptFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "시간"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}
