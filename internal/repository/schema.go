package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableStudents      = "students"
	tableFiles         = "uploaded_files"
	tableAnalyses      = "file_analyses"
	tableCareerGoals   = "career_goals"
	tableCareerHistory = "career_change_history"
)

var textType = map[string]string{dialect.Postgres: "text"}

func uuidCol(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeUUID}
}

func textCol(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: textType, Default: ""}
}

func nullTextCol(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: textType, Nullable: true}
}

func timeCol(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeTime}
}

var (
	StudentsColumns = []*schema.Column{
		uuidCol("id"),
		textCol("student_login_id"),
		textCol("access_code"),
		textCol("name"),
		textCol("grade"),
		{Name: "enrollment_year", Type: field.TypeInt, Nullable: true},
		{Name: "graduation_year", Type: field.TypeInt, Nullable: true},
		textCol("high_school_name"),
		textCol("student_phone"),
		textCol("parent_phone"),
		textCol("consultant_name"),
		uuidCol("created_by"),
		{Name: "is_active", Type: field.TypeBool, Default: true},
		timeCol("created_at"),
		timeCol("updated_at"),
	}
	StudentsTable = &schema.Table{
		Name:       tableStudents,
		Columns:    StudentsColumns,
		PrimaryKey: []*schema.Column{StudentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "students_created_by", Columns: []*schema.Column{StudentsColumns[11]}},
		},
	}

	FilesColumns = []*schema.Column{
		uuidCol("id"),
		uuidCol("student_id"),
		uuidCol("uploaded_by"),
		textCol("file_name"),
		textCol("file_type"),
		textCol("mime_type"),
		{Name: "file_size_bytes", Type: field.TypeInt64, Default: 0},
		textCol("storage_path"),
		textCol("semester"),
		textCol("category_main"),
		nullTextCol("changche_type"),
		textCol("changche_sub"),
		nullTextCol("gyogwa_type"),
		textCol("gyogwa_sub"),
		textCol("gyogwa_subject_name"),
		{Name: "bongsa_hours", Type: field.TypeFloat64, Nullable: true},
		textCol("analysis_status"),
		nullTextCol("analysis_error"),
		timeCol("created_at"),
		timeCol("updated_at"),
	}
	FilesTable = &schema.Table{
		Name:       tableFiles,
		Columns:    FilesColumns,
		PrimaryKey: []*schema.Column{FilesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "uploaded_files_students_files",
				Columns:    []*schema.Column{FilesColumns[1]},
				RefColumns: []*schema.Column{StudentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "uploaded_files_student_id", Columns: []*schema.Column{FilesColumns[1]}},
			{Name: "uploaded_files_storage_path", Columns: []*schema.Column{FilesColumns[7]}},
			{Name: "uploaded_files_status_updated", Columns: []*schema.Column{FilesColumns[16], FilesColumns[19]}},
		},
	}

	AnalysesColumns = []*schema.Column{
		uuidCol("id"),
		{Name: "file_id", Type: field.TypeUUID, Unique: true},
		uuidCol("student_id"),
		textCol("title"),
		textCol("activity_content"),
		textCol("conclusion"),
		textCol("research_plan"),
		textCol("reading_activities"),
		textCol("evaluation_competency"),
		textCol("raw_text"),
		{Name: "is_edited", Type: field.TypeBool, Default: false},
		timeCol("created_at"),
		timeCol("updated_at"),
	}
	AnalysesTable = &schema.Table{
		Name:       tableAnalyses,
		Columns:    AnalysesColumns,
		PrimaryKey: []*schema.Column{AnalysesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "file_analyses_uploaded_files_analysis",
				Columns:    []*schema.Column{AnalysesColumns[1]},
				RefColumns: []*schema.Column{FilesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "file_analyses_student_id", Columns: []*schema.Column{AnalysesColumns[2]}},
		},
	}

	CareerGoalsColumns = []*schema.Column{
		uuidCol("id"),
		{Name: "student_id", Type: field.TypeUUID, Unique: true},
		textCol("career_field_1st"),
		textCol("career_detail_1st"),
		textCol("career_field_2nd"),
		textCol("career_detail_2nd"),
		textCol("target_univ_1_name"),
		textCol("target_univ_1_dept"),
		textCol("target_univ_2_name"),
		textCol("target_univ_2_dept"),
		textCol("target_univ_3_name"),
		textCol("target_univ_3_dept"),
		textCol("target_tier"),
		{Name: "admission_hakjong_ratio", Type: field.TypeInt, Default: 0},
		{Name: "admission_gyogwa_ratio", Type: field.TypeInt, Default: 0},
		{Name: "admission_nonsul_ratio", Type: field.TypeInt, Default: 0},
		{Name: "admission_jeongsi_ratio", Type: field.TypeInt, Default: 0},
		{Name: "field_keywords", Type: field.TypeString, SchemaType: textType, Default: "[]"},
		textCol("special_notes"),
		timeCol("created_at"),
		timeCol("updated_at"),
	}
	CareerGoalsTable = &schema.Table{
		Name:       tableCareerGoals,
		Columns:    CareerGoalsColumns,
		PrimaryKey: []*schema.Column{CareerGoalsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "career_goals_students_goals",
				Columns:    []*schema.Column{CareerGoalsColumns[1]},
				RefColumns: []*schema.Column{StudentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	CareerHistoryColumns = []*schema.Column{
		uuidCol("id"),
		uuidCol("student_id"),
		textCol("change_date"),
		textCol("previous_career"),
		textCol("new_career"),
		textCol("reason"),
		timeCol("created_at"),
		timeCol("updated_at"),
	}
	CareerHistoryTable = &schema.Table{
		Name:       tableCareerHistory,
		Columns:    CareerHistoryColumns,
		PrimaryKey: []*schema.Column{CareerHistoryColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "career_change_history_students_history",
				Columns:    []*schema.Column{CareerHistoryColumns[1]},
				RefColumns: []*schema.Column{StudentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "career_change_history_student_id", Columns: []*schema.Column{CareerHistoryColumns[1]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		StudentsTable,
		FilesTable,
		AnalysesTable,
		CareerGoalsTable,
		CareerHistoryTable,
	}
)

func init() {
	FilesTable.ForeignKeys[0].RefTable = StudentsTable
	AnalysesTable.ForeignKeys[0].RefTable = FilesTable
	CareerGoalsTable.ForeignKeys[0].RefTable = StudentsTable
	CareerHistoryTable.ForeignKeys[0].RefTable = StudentsTable
}

// Migrate creates missing tables, columns and indexes. It never drops anything.
func Migrate(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	logger.Info("db.migrate.start", "dialect", drv.Dialect(), "tables", len(Tables))
	m, err := schema.NewMigrate(drv)
	if err != nil {
		logger.Error("db.migrate.init_failed", "error", err)
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("db.migrate.failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("db.migrate.ok")
	return nil
}
