package entity

import (
	"strings"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
)

// Classification is the taxonomy part of an activity record.
type Classification struct {
	Semester          string   `json:"semester"`
	CategoryMain      string   `json:"category_main"`
	ChangcheType      *string  `json:"changche_type"`
	ChangcheSub       string   `json:"changche_sub"`
	GyogwaType        *string  `json:"gyogwa_type"`
	GyogwaSub         string   `json:"gyogwa_sub"`
	GyogwaSubjectName string   `json:"gyogwa_subject_name"`
	BongsaHours       *float64 `json:"bongsa_hours"`
}

// AnalysisContent is the extracted text part of an activity record.
type AnalysisContent struct {
	Title                string `json:"title"`
	ActivityContent      string `json:"activity_content"`
	Conclusion           string `json:"conclusion"`
	ResearchPlan         string `json:"research_plan"`
	ReadingActivities    string `json:"reading_activities"`
	EvaluationCompetency string `json:"evaluation_competency"`
}

// Normalize canonicalizes taxonomy values and enforces the exclusivity rules:
// 창체 fields are cleared on 교과세특 records and vice versa, and bongsa_hours
// survives only on 봉사활동 records. Unknown semesters become "".
func (c Classification) Normalize() Classification {
	out := Classification{}
	if s, ok := constants.CanonicalSemester(c.Semester); ok {
		out.Semester = s
	}

	main, ok := constants.CanonicalCategory(c.CategoryMain)
	if !ok {
		main = inferCategory(c)
	}
	out.CategoryMain = string(main)

	switch main {
	case constants.Changche:
		if c.ChangcheType == nil {
			break
		}
		t, ok := constants.CanonicalChangcheType(*c.ChangcheType)
		if !ok {
			break
		}
		ts := string(t)
		out.ChangcheType = &ts
		out.ChangcheSub = constants.CanonicalChangcheSub(t, c.ChangcheSub)
		if t == constants.Bongsa && c.BongsaHours != nil && *c.BongsaHours >= 0 {
			h := *c.BongsaHours
			out.BongsaHours = &h
		}
	case constants.Gyogwa:
		out.GyogwaSubjectName = strings.TrimSpace(c.GyogwaSubjectName)
		if c.GyogwaType == nil {
			break
		}
		t, ok := constants.CanonicalGyogwaType(*c.GyogwaType)
		if !ok {
			break
		}
		ts := string(t)
		out.GyogwaType = &ts
		out.GyogwaSub = constants.CanonicalGyogwaSub(t, c.GyogwaSub)
	}
	return out
}

// WithDefaults fills fields that are empty in c from def.
func (c Classification) WithDefaults(def Classification) Classification {
	if c.Semester == "" {
		c.Semester = def.Semester
	}
	if c.CategoryMain == "" {
		c.CategoryMain = def.CategoryMain
	}
	if c.ChangcheType == nil {
		c.ChangcheType = def.ChangcheType
	}
	if c.ChangcheSub == "" {
		c.ChangcheSub = def.ChangcheSub
	}
	if c.GyogwaType == nil {
		c.GyogwaType = def.GyogwaType
	}
	if c.GyogwaSub == "" {
		c.GyogwaSub = def.GyogwaSub
	}
	if c.GyogwaSubjectName == "" {
		c.GyogwaSubjectName = def.GyogwaSubjectName
	}
	if c.BongsaHours == nil {
		c.BongsaHours = def.BongsaHours
	}
	return c
}

// inferCategory is used when category_main is missing or unknown. Only
// type values that canonicalize count as evidence.
func inferCategory(c Classification) constants.CategoryMain {
	if strings.TrimSpace(c.GyogwaSubjectName) != "" {
		return constants.Gyogwa
	}
	if c.GyogwaType != nil {
		if _, ok := constants.CanonicalGyogwaType(*c.GyogwaType); ok {
			return constants.Gyogwa
		}
	}
	if c.ChangcheType != nil {
		if _, ok := constants.CanonicalChangcheType(*c.ChangcheType); ok {
			return constants.Changche
		}
	}
	return ""
}

// Trim returns c with surrounding whitespace removed from every field.
func (c AnalysisContent) Trim() AnalysisContent {
	return AnalysisContent{
		Title:                strings.TrimSpace(c.Title),
		ActivityContent:      strings.TrimSpace(c.ActivityContent),
		Conclusion:           strings.TrimSpace(c.Conclusion),
		ResearchPlan:         strings.TrimSpace(c.ResearchPlan),
		ReadingActivities:    strings.TrimSpace(c.ReadingActivities),
		EvaluationCompetency: strings.TrimSpace(c.EvaluationCompetency),
	}
}
