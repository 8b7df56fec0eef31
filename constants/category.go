package constants

import (
	"strings"
)

// CategoryMain is the top-level classification of an activity record.
type CategoryMain string

const (
	Changche CategoryMain = "창체활동"
	Gyogwa   CategoryMain = "교과세특"
)

// ChangcheType is the activity type of a 창체활동 record.
type ChangcheType string

const (
	Jayul   ChangcheType = "자율활동"
	Dongari ChangcheType = "동아리활동"
	Jinro   ChangcheType = "진로활동"
	Bongsa  ChangcheType = "봉사활동"
)

// GyogwaType is the record type of a 교과세특 record.
type GyogwaType string

const (
	Suhaeng GyogwaType = "수행평가"
	Chuga   GyogwaType = "추가활동"
)

// Other is the sub-activity used when a model-supplied value is outside the vocabulary.
const Other = "기타"

var allCategories = []CategoryMain{Changche, Gyogwa}

var allChangcheTypes = []ChangcheType{Jayul, Dongari, Jinro, Bongsa}

var allGyogwaTypes = []GyogwaType{Suhaeng, Chuga}

// Sub-activity vocabularies. 봉사활동 has none; it carries service hours instead.
var changcheSubs = map[ChangcheType][]string{
	Jayul:   {"학급자치", "학생회", "특강", "캠페인", "행사", Other},
	Dongari: {"정규동아리", "자율동아리", "탐구활동", "프로젝트", Other},
	Jinro:   {"진로탐색", "진로특강", "진로체험", "진로상담", Other},
	Bongsa:  {},
}

var gyogwaSubs = map[GyogwaType][]string{
	Suhaeng: {"발표", "보고서", "토론", "실험", "프로젝트", "논술", Other},
	Chuga:   {"독서", "탐구", "특강", "대회", "멘토링", Other},
}

// Single-character codes used by the compact model output format.
var (
	categoryCodes = map[string]CategoryMain{
		"창": Changche,
		"교": Gyogwa,
	}
	changcheCodes = map[string]ChangcheType{
		"자": Jayul,
		"동": Dongari,
		"진": Jinro,
		"봉": Bongsa,
	}
	gyogwaCodes = map[string]GyogwaType{
		"수": Suhaeng,
		"추": Chuga,
	}
)

// Categories returns the main categories in display order.
func Categories() []CategoryMain { return append([]CategoryMain(nil), allCategories...) }

// ChangcheTypes returns the 창체 activity types in display order.
func ChangcheTypes() []ChangcheType { return append([]ChangcheType(nil), allChangcheTypes...) }

// GyogwaTypes returns the 교과세특 activity types in display order.
func GyogwaTypes() []GyogwaType { return append([]GyogwaType(nil), allGyogwaTypes...) }

// ChangcheSubs returns the sub-activity vocabulary for t (nil for unknown types).
func ChangcheSubs(t ChangcheType) []string {
	return append([]string(nil), changcheSubs[t]...)
}

// GyogwaSubs returns the sub-activity vocabulary for t (nil for unknown types).
func GyogwaSubs(t GyogwaType) []string {
	return append([]string(nil), gyogwaSubs[t]...)
}

// CategoryCode returns the compact code for c.
func CategoryCode(c CategoryMain) string { return codeOf(categoryCodes, c) }

// ChangcheCode returns the compact code for t.
func ChangcheCode(t ChangcheType) string { return codeOf(changcheCodes, t) }

// GyogwaCode returns the compact code for t.
func GyogwaCode(t GyogwaType) string { return codeOf(gyogwaCodes, t) }

func codeOf[T comparable](m map[string]T, v T) string {
	for code, val := range m {
		if val == v {
			return code
		}
	}
	return ""
}

// CanonicalCategory accepts a compact code, the full name or a short synonym.
func CanonicalCategory(input string) (CategoryMain, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if c, ok := categoryCodes[s]; ok {
		return c, true
	}
	for _, c := range allCategories {
		if s == string(c) {
			return c, true
		}
	}
	synonyms := map[string]CategoryMain{
		"창체":    Changche,
		"창의적체험활동": Changche,
		"교과":    Gyogwa,
		"세특":    Gyogwa,
		"교과세부능력": Gyogwa,
	}
	if c, ok := synonyms[strings.ReplaceAll(s, " ", "")]; ok {
		return c, true
	}
	return "", false
}

// CanonicalChangcheType accepts "자", "자율" or "자율활동".
func CanonicalChangcheType(input string) (ChangcheType, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(input), " ", "")
	if s == "" {
		return "", false
	}
	if t, ok := changcheCodes[s]; ok {
		return t, true
	}
	for _, t := range allChangcheTypes {
		if s == string(t) || s+"활동" == string(t) {
			return t, true
		}
	}
	return "", false
}

// CanonicalGyogwaType accepts "수", "수행" or "수행평가".
func CanonicalGyogwaType(input string) (GyogwaType, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(input), " ", "")
	if s == "" {
		return "", false
	}
	if t, ok := gyogwaCodes[s]; ok {
		return t, true
	}
	for _, t := range allGyogwaTypes {
		if s == string(t) || strings.HasPrefix(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// CanonicalChangcheSub maps an empty value to "", a known value to itself and
// anything else to Other.
func CanonicalChangcheSub(t ChangcheType, input string) string {
	return canonicalSub(changcheSubs[t], input)
}

// CanonicalGyogwaSub is CanonicalChangcheSub for 교과세특 types.
func CanonicalGyogwaSub(t GyogwaType, input string) string {
	return canonicalSub(gyogwaSubs[t], input)
}

func canonicalSub(vocab []string, input string) string {
	s := strings.TrimSpace(input)
	if s == "" || len(vocab) == 0 {
		return ""
	}
	for _, v := range vocab {
		if s == v {
			return v
		}
	}
	return Other
}
