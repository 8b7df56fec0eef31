package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/entity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/pipeline"
	repo "github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze <file_id> [times]",
	Short: "Reanalyze one stored record repeatedly and report how stable the output is",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runReanalyze,
}

type snapshot struct {
	Classification entity.Classification
	Content        entity.AnalysisContent
}

func runReanalyze(cmd *cobra.Command, args []string) error {
	fileID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid file_id %q: %w", args[0], err)
	}
	times := 3
	if len(args) == 2 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			times = n
		}
	}

	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		return common.NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", common.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	drv, pool, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close(drv, pool, logger)

	blobs, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	studentsRepo := repo.NewStudentRepository(drv, logger)
	filesRepo := repo.NewFileRepository(drv, logger)
	analysesRepo := repo.NewAnalysisRepository(drv, logger)

	fileRow, err := filesRepo.GetByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", fileID, err)
	}
	st, err := studentsRepo.GetByID(ctx, fileRow.StudentID)
	if err != nil {
		return fmt.Errorf("load student %s: %w", fileRow.StudentID, err)
	}

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	proc := pipeline.NewProcessor(logger, cfg.Analysis.Timeout, drv, studentsRepo, filesRepo, analysesRepo, blobs,
		document.NewDecoder(document.Config{}, logger),
		llm.NewExtractor(client, cfg.LLM.MaxInputChars, cfg.LLM.MaxTokens, logger))

	logger.Info("reanalyze.batch.start", "file_id", fileID, "student_id", st.ID, "times", times)

	var first *snapshot
	stable := 0
	for i := 1; i <= times; i++ {
		start := time.Now()
		out, err := proc.Reanalyze(ctx, st.CreatedBy, fileID)
		if err != nil {
			return fmt.Errorf("run %d: %w", i, err)
		}
		cur := &snapshot{Classification: out.File.Classification, Content: out.Analysis.AnalysisContent}
		if first == nil {
			first = cur
			stable++
		} else if diff := cmp.Diff(first, cur); diff != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "run %d differs from run 1 (-first +run):\n%s\n", i, diff)
		} else {
			stable++
		}
		logger.Info("reanalyze.batch.run",
			"run", i,
			"status", out.File.AnalysisStatus,
			"title", out.Analysis.Title,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d runs matched the first result\n", stable, times)
	return nil
}
