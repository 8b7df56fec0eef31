package entity

import (
	"time"

	"github.com/google/uuid"
)

// Student represents a student for data transfer between layers.
type Student struct {
	ID             uuid.UUID `json:"id"`
	StudentLoginID string    `json:"student_login_id"`
	AccessCode     string    `json:"access_code"`
	Name           string    `json:"name"`
	Grade          string    `json:"grade"`
	EnrollmentYear *int      `json:"enrollment_year"`
	GraduationYear *int      `json:"graduation_year"`
	HighSchoolName string    `json:"high_school_name"`
	StudentPhone   string    `json:"student_phone"`
	ParentPhone    string    `json:"parent_phone"`
	ConsultantName string    `json:"consultant_name"`
	CreatedBy      uuid.UUID `json:"created_by"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CareerGoals struct {
	ID                    uuid.UUID `json:"id"`
	StudentID             uuid.UUID `json:"student_id"`
	CareerField1st        string    `json:"career_field_1st"`
	CareerDetail1st       string    `json:"career_detail_1st"`
	CareerField2nd        string    `json:"career_field_2nd"`
	CareerDetail2nd       string    `json:"career_detail_2nd"`
	TargetUniv1Name       string    `json:"target_univ_1_name"`
	TargetUniv1Dept       string    `json:"target_univ_1_dept"`
	TargetUniv2Name       string    `json:"target_univ_2_name"`
	TargetUniv2Dept       string    `json:"target_univ_2_dept"`
	TargetUniv3Name       string    `json:"target_univ_3_name"`
	TargetUniv3Dept       string    `json:"target_univ_3_dept"`
	TargetTier            string    `json:"target_tier"`
	AdmissionHakjongRatio int       `json:"admission_hakjong_ratio"`
	AdmissionGyogwaRatio  int       `json:"admission_gyogwa_ratio"`
	AdmissionNonsulRatio  int       `json:"admission_nonsul_ratio"`
	AdmissionJeongsiRatio int       `json:"admission_jeongsi_ratio"`
	FieldKeywords         []string  `json:"field_keywords"`
	SpecialNotes          string    `json:"special_notes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type CareerChange struct {
	ID             uuid.UUID `json:"id"`
	StudentID      uuid.UUID `json:"student_id"`
	ChangeDate     string    `json:"change_date"` // YYYY-MM-DD
	PreviousCareer string    `json:"previous_career"`
	NewCareer      string    `json:"new_career"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
