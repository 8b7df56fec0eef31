package constants

import "strings"

var semesters = []string{"1-1", "1-2", "2-1", "2-2", "3-1", "3-2"}

// Semesters returns every semester code from "1-1" to "3-2".
func Semesters() []string { return append([]string(nil), semesters...) }

// CanonicalSemester accepts "1-1", "1-1학기" or "1학년 1학기".
func CanonicalSemester(input string) (string, bool) {
	s := strings.NewReplacer(" ", "", "학년", "-", "학기", "").Replace(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, "--", "-")
	for _, v := range semesters {
		if s == v {
			return v, true
		}
	}
	return "", false
}

// SemesterOrder returns the sort position of s; unknown semesters sort last.
func SemesterOrder(s string) int {
	for i, v := range semesters {
		if v == s {
			return i
		}
	}
	return 99
}

// SemesterGrade returns "1학년" for "1-2" and "" for unknown values.
func SemesterGrade(s string) string {
	if SemesterOrder(s) == 99 {
		return ""
	}
	return s[:1] + "학년"
}
