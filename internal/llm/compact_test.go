package llm

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
)

func strPtr(s string) *string { return &s }

func TestDecodeCompact(t *testing.T) {
	raw := `{"e":[
		{"s":"1-1","c":"창","ct":"자","cs":"캠페인","t":"환경 캠페인","ac":"포스터 제작","ec":["리더십","협업능력"]},
		{"s":"2-1","c":"교","gt":"수","gs":"발표","gn":"수학","t":"미분 발표","ac":"도함수의 활용을 발표"}
	]}`

	d, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, ShapeCompact, d.Shape)
	assert.False(t, d.Repaired)

	want := []Entry{
		{
			Classification: entity.Classification{
				Semester:     "1-1",
				CategoryMain: "창체활동",
				ChangcheType: strPtr("자율활동"),
				ChangcheSub:  "캠페인",
			},
			AnalysisContent: entity.AnalysisContent{
				Title:                "환경 캠페인",
				ActivityContent:      "포스터 제작",
				EvaluationCompetency: "리더십, 협업능력",
			},
		},
		{
			Classification: entity.Classification{
				Semester:          "2-1",
				CategoryMain:      "교과세특",
				GyogwaType:        strPtr("수행평가"),
				GyogwaSub:         "발표",
				GyogwaSubjectName: "수학",
			},
			AnalysisContent: entity.AnalysisContent{
				Title:           "미분 발표",
				ActivityContent: "도함수의 활용을 발표",
			},
		},
	}
	if diff := cmp.Diff(want, d.Entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCompactDefaultsAbsentFields(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"s":"1-2","c":"창","ct":"봉","bh":"12시간","t":"멘토링"}`), &m))

	e := ExpandCompact(m)
	assert.Equal(t, "1-2", e.Semester)
	assert.Equal(t, "창체활동", e.CategoryMain)
	require.NotNil(t, e.ChangcheType)
	assert.Equal(t, "봉사활동", *e.ChangcheType)
	require.NotNil(t, e.BongsaHours)
	assert.Equal(t, 12.0, *e.BongsaHours)
	assert.Equal(t, "", e.ChangcheSub)
	assert.Nil(t, e.GyogwaType)
	assert.Equal(t, "", e.Conclusion)
	assert.Equal(t, "", e.ResearchPlan)
}

func TestDecodeExclusivity(t *testing.T) {
	// 교과 fields on a 창체 entry and hours on a non-봉사 entry are dropped.
	raw := `{"e":[
		{"s":"1-1","c":"창","ct":"동","cs":"없는세부","gt":"수","gn":"국어","bh":5,"t":"독서 동아리","ac":"토론"},
		{"s":"3-1","c":"교","gt":"추","ct":"진","bh":3,"gn":" 물리학Ⅰ ","t":"탐구","ac":"실험"}
	]}`

	entries, err := DecodeEntries([]byte(raw))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	a := entries[0]
	require.NotNil(t, a.ChangcheType)
	assert.Equal(t, "동아리활동", *a.ChangcheType)
	assert.Equal(t, "기타", a.ChangcheSub)
	assert.Nil(t, a.GyogwaType)
	assert.Equal(t, "", a.GyogwaSubjectName)
	assert.Nil(t, a.BongsaHours)

	b := entries[1]
	assert.Nil(t, b.ChangcheType)
	assert.Nil(t, b.BongsaHours)
	require.NotNil(t, b.GyogwaType)
	assert.Equal(t, "추가활동", *b.GyogwaType)
	assert.Equal(t, "물리학Ⅰ", b.GyogwaSubjectName)
}

func TestDecodeVerboseShapes(t *testing.T) {
	t.Run("entries object", func(t *testing.T) {
		d, err := Decode([]byte(`{"entries":[{"semester":"1학년 2학기","category_main":"교과세특","gyogwa_type":"수행평가","title":"보고서","activity_content":"내용"}]}`))
		require.NoError(t, err)
		assert.Equal(t, ShapeVerboseArray, d.Shape)
		require.Len(t, d.Entries, 1)
		assert.Equal(t, "1-2", d.Entries[0].Semester)
	})

	t.Run("bare array with compact items", func(t *testing.T) {
		d, err := Decode([]byte(`[{"s":"2-2","c":"창","ct":"진","t":"직업 탐색","ac":"인터뷰"}]`))
		require.NoError(t, err)
		assert.Equal(t, ShapeVerboseArray, d.Shape)
		require.Len(t, d.Entries, 1)
		assert.Equal(t, "직업 탐색", d.Entries[0].Title)
	})

	t.Run("legacy single object", func(t *testing.T) {
		d, err := Decode([]byte("```json\n{\"title\":\"효소 실험\",\"activity_content\":\"온도별 측정\",\"conclusion\":\"최적 온도 확인\",\"evaluation_competency\":\"탐구력, 논리적사고력\"}\n```"))
		require.NoError(t, err)
		assert.Equal(t, ShapeLegacySingle, d.Shape)
		require.Len(t, d.Entries, 1)
		e := d.Entries[0]
		assert.Equal(t, "효소 실험", e.Title)
		assert.Equal(t, "", e.Semester)
		assert.Equal(t, "", e.CategoryMain)
	})
}

func TestDecodeSkipsEmptyEntries(t *testing.T) {
	d, err := Decode([]byte(`{"e":[{"s":"1-1","c":"창"},{"t":"제목만"},"oops"]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Skipped)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, "제목만", d.Entries[0].Title)
}

func TestDecodeNoEntries(t *testing.T) {
	for _, raw := range []string{`{"e":[]}`, `{"foo":"bar"}`, `{"e":[{"s":"1-1"}]}`} {
		_, err := DecodeEntries([]byte(raw))
		require.ErrorIs(t, err, common.ErrNoEntriesExtracted, raw)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeEntries([]byte(`not json at all`))
	require.ErrorIs(t, err, common.ErrMalformedResponse)

	_, err = DecodeEntries([]byte(`"just a string"`))
	require.ErrorIs(t, err, common.ErrMalformedResponse)

	_, err = DecodeEntries([]byte("   "))
	require.ErrorIs(t, err, common.ErrEmptyResponse)
}

func TestDecodeTruncatedResponse(t *testing.T) {
	raw := `{"e":[{"s":"1-1","c":"창","ct":"자","t":"첫째","ac":"가"},{"s":"1-2","c":"창","ct":"동","t":"둘째","ac":"나"},{"s":"2-1","c":"교","gt":"수","t":"셋`

	d, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.True(t, d.Repaired)
	require.Len(t, d.Entries, 2)
	assert.Equal(t, "첫째", d.Entries[0].Title)
	assert.Equal(t, "둘째", d.Entries[1].Title)
}

func TestEntryJSONKeepsNulls(t *testing.T) {
	b, err := json.Marshal(Entry{Classification: entity.Classification{Semester: "1-1"}})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "changche_type")
	assert.Nil(t, m["changche_type"])
	assert.Contains(t, m, "bongsa_hours")
	assert.Equal(t, "", m["research_plan"])
}

func TestValidateEntryAcceptsCodesAndSynonyms(t *testing.T) {
	for _, m := range []map[string]any{
		{"semester": "1학년 2학기", "category_main": "창", "changche_type": "봉", "bongsa_hours": "12시간", "title": "a"},
		{"semester": "", "category_main": "교과", "gyogwa_type": "수행", "evaluation_competency": []any{"탐구력", "협업"}},
		{"changche_type": nil, "gyogwa_type": nil, "bongsa_hours": nil},
		{"semester": "3-2", "category_main": "창체활동", "changche_type": "봉사활동", "bongsa_hours": float64(4)},
	} {
		assert.NoError(t, ValidateEntry(m), "%v", m)
	}
}

func TestValidateEntryReportsUnknownValues(t *testing.T) {
	err := ValidateEntry(map[string]any{
		"semester":      "9-9",
		"category_main": "우주",
		"gyogwa_type":   "??",
		"bongsa_hours":  float64(-5),
		"title":         "A",
	})
	require.Error(t, err)
	for _, field := range []string{"semester", "category_main", "gyogwa_type", "bongsa_hours"} {
		assert.Contains(t, err.Error(), field)
	}

	require.Error(t, ValidateEntry(map[string]any{"title": float64(3)}))
}

func TestDecodeRecordsSchemaViolations(t *testing.T) {
	raw := `{"e":[{"s":"9-9","c":"우주","ct":"없음","gt":"??","bh":-5,"t":"A"},{"s":"1-1","c":"교","ct":"봉","bh":40,"t":"B"}]}`

	d, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, d.Entries, 2)

	a := d.Entries[0]
	assert.Equal(t, "", a.Semester)
	assert.Equal(t, "", a.CategoryMain, "an unknown gyogwa_type must not imply 교과세특")
	assert.Nil(t, a.GyogwaType)
	assert.Nil(t, a.BongsaHours)

	b := d.Entries[1]
	assert.Equal(t, "1-1", b.Semester)
	assert.Equal(t, "교과세특", b.CategoryMain)
	assert.Nil(t, b.ChangcheType)
	assert.Nil(t, b.BongsaHours)

	require.Len(t, d.Violations, 1)
	assert.Equal(t, 0, d.Violations[0].Index)
	assert.Equal(t, "A", d.Violations[0].Title)
	assert.Contains(t, d.Violations[0].Detail, "semester")
}
