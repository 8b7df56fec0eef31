package constants

// AnalysisStatus is the canonical status for rows in uploaded_files.
type AnalysisStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending   AnalysisStatus = "대기중"
	StatusAnalyzing AnalysisStatus = "분석중"
	StatusComplete  AnalysisStatus = "완료"
	StatusFailed    AnalysisStatus = "실패" // terminal; always carries analysis_error
)

// TargetTier is the university tier a student aims for.
type TargetTier string

const (
	TierTop       TargetTier = "최상위"
	TierUpper     TargetTier = "상위"
	TierUpperMid  TargetTier = "중상위"
	TierMid       TargetTier = "중위"
	TierUndecided TargetTier = ""
)

var targetTiers = []TargetTier{TierUndecided, TierTop, TierUpper, TierUpperMid, TierMid}

// ValidTargetTier reports whether t is one of the known tiers (empty allowed).
func ValidTargetTier(t string) bool {
	for _, v := range targetTiers {
		if string(v) == t {
			return true
		}
	}
	return false
}
