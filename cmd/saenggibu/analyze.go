package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm/openai"
)

var (
	analyzeGrade   string
	analyzeYear    int
	analyzeRawOnly bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Decode a local document, extract activity entries and print them as JSON",
	Long: `Runs the decode and extraction steps on a local PDF, DOCX or image without
touching the database or blob storage. With --text-only the model is not called.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeGrade, "grade", "", "Student grade for the prompt, e.g. 2")
	analyzeCmd.Flags().IntVar(&analyzeYear, "enrollment-year", 0, "Student enrollment year for semester inference")
	analyzeCmd.Flags().BoolVar(&analyzeRawOnly, "text-only", false, "Print decoded text and stop")
}

type analyzeOutput struct {
	File         string          `json:"file"`
	Format       string          `json:"format"`
	TextChars    int             `json:"text_chars"`
	Pages        int             `json:"pages,omitempty"`
	Shape        llm.Shape       `json:"shape,omitempty"`
	Repaired     bool            `json:"repaired"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Entries      []llm.Entry     `json:"entries"`
	Violations   []llm.Violation `json:"violations,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	dec := document.NewDecoder(document.Config{}, logger)
	content, err := dec.Decode(name, constants.MimeForExt(constants.NormalizeExt(filepath.Ext(name))), data)
	if err != nil {
		return err
	}
	if analyzeRawOnly {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), content.Text)
		return err
	}

	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		return common.NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", common.ErrInvalidInput)
	}
	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	ext := llm.NewExtractor(client, cfg.LLM.MaxInputChars, cfg.LLM.MaxTokens, logger)

	student := llm.StudentContext{Grade: analyzeGrade}
	if analyzeYear > 0 {
		student.EnrollmentYear = &analyzeYear
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	res, err := ext.Extract(ctx, llm.ExtractRequest{Student: student, Content: content})
	if err != nil {
		return err
	}

	out := analyzeOutput{
		File:         name,
		Format:       string(content.Format),
		TextChars:    len([]rune(content.Text)),
		Pages:        content.Pages,
		Shape:        res.Shape,
		Repaired:     res.Repaired,
		FinishReason: res.FinishReason,
		Entries:      make([]llm.Entry, 0, len(res.Entries)),
		Violations:   res.Violations,
	}
	for _, e := range res.Entries {
		out.Entries = append(out.Entries, llm.NormalizeEntry(e))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
