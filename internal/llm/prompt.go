package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
)

// Competencies suggested to the model for evaluation_competency.
var Competencies = []string{
	"탐구력", "논리적사고력", "문제해결력", "창의성", "협업능력",
	"의사소통능력", "자기주도성", "비판적사고력", "정보활용능력", "리더십",
}

const compactKeyTable = `키 매핑 (반드시 아래 약어 키만 사용):
- s: 학기 ("1-1", "1-2", "2-1", "2-2", "3-1", "3-2")
- c: 대분류 코드
- ct: 창체 유형 코드 (c가 "창"일 때만)
- cs: 창체 세부활동 (c가 "창"일 때만)
- gt: 교과 유형 코드 (c가 "교"일 때만)
- gs: 교과 세부활동 (c가 "교"일 때만)
- gn: 과목명 (c가 "교"일 때만, 예: "수학", "생명과학Ⅰ")
- bh: 봉사시간 숫자 (ct가 "봉"일 때만)
- t: 활동/탐구 제목 (간결하게)
- ac: 탐구 과정 요약 (핵심 내용 위주로 3-5문장)
- co: 결과 및 시사점 (2-3문장)
- rp: 추가탐구계획 (본문에 있을 때만)
- ra: 독서활동 (본문에 있을 때만)
- ec: 드러나는 핵심 역량 2-3개를 쉼표로 구분`

const fewShot = `예시 1 (창체활동):
{"e":[{"s":"1-1","c":"창","ct":"자","cs":"캠페인","t":"교내 환경 캠페인 기획","ac":"학급 친구들과 일회용품 줄이기 캠페인을 기획하고 포스터를 제작하였다.","co":"교내 일회용컵 사용량이 줄어드는 변화를 확인하였다.","ec":"리더십, 협업능력"},{"s":"1-2","c":"창","ct":"봉","bh":12,"t":"지역 아동센터 학습 멘토링","ac":"주 1회 초등학생에게 수학 학습을 지도하였다."}]}

예시 2 (교과세특):
{"e":[{"s":"2-1","c":"교","gt":"수","gs":"발표","gn":"생명과학Ⅰ","t":"효소 활성과 온도의 관계","ac":"카탈레이스 실험을 설계하여 온도별 산소 발생량을 측정하고 그래프로 분석하였다.","co":"최적 온도 이후 활성이 급감함을 확인하였다.","rp":"pH 변화에 따른 활성 비교 실험","ec":"탐구력, 논리적사고력"}]}`

// BuildSystemPrompt returns the instruction block for one extraction. The
// output depends only on sc, so identical inputs give identical prompts.
func BuildSystemPrompt(sc StudentContext) string {
	var b strings.Builder
	b.WriteString("당신은 한국 고등학생 학교생활기록부(생기부) 활동 보고서를 분석하는 전문가입니다.\n")
	b.WriteString("문서에 포함된 모든 활동을 빠짐없이 개별 항목으로 추출하여 JSON으로 응답하세요.\n")
	b.WriteString("모든 학년(1학년~3학년)과 모든 학기의 활동을 추출해야 하며, 하나의 문서에 여러 활동이 있으면 각각 별도 항목으로 만드세요.\n\n")

	if line := studentLine(sc); line != "" {
		b.WriteString(line)
		b.WriteString("\n\n")
	}

	b.WriteString("분류 체계:\n")
	for _, c := range constants.Categories() {
		fmt.Fprintf(&b, "- 대분류 %q = %s\n", constants.CategoryCode(c), c)
	}
	for _, t := range constants.ChangcheTypes() {
		fmt.Fprintf(&b, "  - 창체 유형 %q = %s", constants.ChangcheCode(t), t)
		if subs := constants.ChangcheSubs(t); len(subs) > 0 {
			fmt.Fprintf(&b, " (세부: %s)", strings.Join(subs, ", "))
		}
		b.WriteString("\n")
	}
	for _, t := range constants.GyogwaTypes() {
		fmt.Fprintf(&b, "  - 교과 유형 %q = %s (세부: %s)\n", constants.GyogwaCode(t), t, strings.Join(constants.GyogwaSubs(t), ", "))
	}
	fmt.Fprintf(&b, "- 학기 값: %s\n", strings.Join(constants.Semesters(), ", "))
	b.WriteString("\n")

	b.WriteString(compactKeyTable)
	b.WriteString("\n\n")

	b.WriteString("규칙:\n")
	fmt.Fprintf(&b, "- 응답은 {\"%s\":[...]} 형태의 JSON 객체 하나만 출력하세요.\n", CompactArrayKey)
	b.WriteString("- 값이 없거나 비어있는 키는 아예 출력하지 마세요. null이나 빈 문자열을 쓰지 마세요.\n")
	b.WriteString("- 창체 항목에는 gt/gs/gn을, 교과 항목에는 ct/cs/bh를 쓰지 마세요.\n")
	b.WriteString("- 세부활동이 목록에 없으면 \"" + constants.Other + "\"를 쓰세요.\n")
	b.WriteString("- ec 역량 예시: " + strings.Join(Competencies, ", ") + "\n")
	b.WriteString("- 모든 값은 한국어로 작성하세요. 반드시 유효한 JSON만 응답하세요.\n\n")

	b.WriteString(fewShot)
	return b.String()
}

// studentLine maps grade levels to school years when the enrollment year is known.
func studentLine(sc StudentContext) string {
	grade := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sc.Grade), "학년"))
	var parts []string
	if grade != "" {
		parts = append(parts, "학생의 현재 학년: "+grade+"학년.")
	}
	if sc.EnrollmentYear != nil && *sc.EnrollmentYear > 0 {
		y := *sc.EnrollmentYear
		parts = append(parts, fmt.Sprintf("입학년도 %d: 1학년=%d년, 2학년=%d년, 3학년=%d년. 문서에 연도만 있으면 이 대응으로 학기를 정하세요.",
			y, y, y+1, y+2))
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt returns the user turn text. Text documents are cut to
// maxChars runes; images get a short instruction and travel as an attachment.
func BuildUserPrompt(c document.Content, maxChars int) string {
	if c.Format == constants.IMAGE {
		return "첨부된 이미지는 학생의 활동 보고서입니다. 이미지의 모든 활동을 분석해주세요."
	}
	text := document.Truncate(c.Text, maxChars)
	var b strings.Builder
	b.WriteString("다음 활동 보고서를 분석해주세요")
	if c.Pages > 0 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(c.Pages))
		b.WriteString("쪽)")
	}
	b.WriteString(":\n\n")
	b.WriteString(text)
	return b.String()
}
