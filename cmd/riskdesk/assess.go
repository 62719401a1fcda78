package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/riskdesk/internal/logging"
	"github.com/osvaldoandrade/riskdesk/internal/providers"
	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/app"
	"github.com/osvaldoandrade/riskdesk/pkg/config"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

func featuresCmd(ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the assessment catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range domain.DefaultCatalog() {
				fmt.Printf("%s %s %s\n", ui.title(f.Title), ui.dim("("+string(f.RiskType)+")"), ui.info(f.Action))
				for _, k := range sortedKeys(f.InputData) {
					fmt.Printf("    %s: %v\n", k, f.InputData[k])
				}
			}
			return nil
		},
	}
}

func assessCmd(g *globals, ui *ui) *cobra.Command {
	var (
		riskType string
		inputs   []string
		saveDir  string
		verbose  bool
	)

	run := &cobra.Command{
		Use:     "run",
		Short:   "Run one assessment against the agent directly",
		Example: "riskdesk assess run --type trading --input token_symbol=BTC --save-dir ./reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := domain.ParseRiskType(riskType)
			if err != nil {
				return err
			}
			f, _ := domain.FindFeature(domain.DefaultCatalog(), rt)
			if f.InputData, err = mergeInputs(f.InputData, inputs); err != nil {
				return err
			}
			cfg, err := loadServerConfig(g.serverCfg)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger, closeLog := cliLogger(verbose)
			defer closeLog()

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " " + f.Title + ": Initializing..."
			spin.Start()
			recs, err := runLocal(ctx, cfg, []domain.Feature{f}, logger, func(t workflow.Transition) {
				v := workflow.Render(f, t.To, cfg.Workflow.PollInterval())
				spin.Lock()
				spin.Suffix = " " + f.Title + ": " + v.Label
				spin.Unlock()
			})
			spin.Stop()
			if err != nil {
				return err
			}
			return reportRuns(ctx, ui, recs, saveDir)
		},
	}
	run.Flags().StringVar(&riskType, "type", "", "Risk type (see `riskdesk features`)")
	run.Flags().StringArrayVar(&inputs, "input", nil, "Override an input field as key=value (repeatable)")
	run.Flags().StringVar(&saveDir, "save-dir", "", "Write each result as JSON and markdown under this directory")
	run.Flags().BoolVar(&verbose, "verbose", false, "Log workflow progress to stderr")
	_ = run.MarkFlagRequired("type")

	var (
		allSaveDir string
		allVerbose bool
	)
	all := &cobra.Command{
		Use:   "all",
		Short: "Run every catalogue assessment concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig(g.serverCfg)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger, closeLog := cliLogger(allVerbose)
			defer closeLog()

			catalog := domain.DefaultCatalog()
			bar := progressbar.NewOptions(len(catalog),
				progressbar.OptionSetDescription("Running assessments"),
				progressbar.OptionSetWidth(18),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			recs, err := runLocal(ctx, cfg, catalog, logger, func(t workflow.Transition) {
				if workflow.Terminal(t.To) {
					_ = bar.Add(1)
				}
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}
			return reportRuns(ctx, ui, recs, allSaveDir)
		},
	}
	all.Flags().StringVar(&allSaveDir, "save-dir", "", "Write each result as JSON and markdown under this directory")
	all.Flags().BoolVar(&allVerbose, "verbose", false, "Log workflow progress to stderr")

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run assessments locally, without the gateway",
	}
	cmd.AddCommand(run, all)
	return cmd
}

// runLocal mounts a board for features, triggers every card and waits for all
// of them. Records come back in catalogue order.
func runLocal(ctx context.Context, cfg *config.Config, features []domain.Feature, logger *slog.Logger, onTransition func(workflow.Transition)) ([]domain.RunRecord, error) {
	opts := []workflow.Option{workflow.WithLogger(logger)}
	if onTransition != nil {
		var mu sync.Mutex
		opts = append(opts, workflow.WithObserver(func(t workflow.Transition) {
			mu.Lock()
			defer mu.Unlock()
			onTransition(t)
		}))
	}
	board, err := workflow.NewBoard(features, app.WorkflowConfig(cfg), app.AgentClients(cfg, logger), opts...)
	if err != nil {
		return nil, err
	}
	defer board.Close()

	for _, f := range features {
		if _, err := board.Trigger(ctx, f.RiskType); err != nil {
			return nil, err
		}
	}

	recs := make([]domain.RunRecord, 0, len(features))
	for _, f := range features {
		w, _ := board.Workflow(f.RiskType)
		st, err := w.Wait(ctx)
		if err != nil {
			return recs, fmt.Errorf("%s: %w", f.Title, err)
		}
		rec, ok := services.RecordFromTransition(workflow.Transition{RiskType: f.RiskType, Title: f.Title, To: st, At: time.Now()})
		if !ok {
			return recs, fmt.Errorf("%s: run ended in %s", f.Title, st.Phase())
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func reportRuns(ctx context.Context, ui *ui, recs []domain.RunRecord, saveDir string) error {
	var exporter *providers.RunExporter
	if strings.TrimSpace(saveDir) != "" {
		exporter = providers.NewRunExporter(providers.NewLocalUploader(saveDir))
	}
	failed := 0
	for _, rec := range recs {
		printRun(ui, rec)
		if rec.Outcome != domain.OutcomeCompleted {
			failed++
		}
		if exporter == nil {
			continue
		}
		paths, err := exporter.Export(ctx, rec)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Printf("    %s %s\n", ui.dim("saved"), p)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(recs))
	}
	return nil
}

func printRun(ui *ui, rec domain.RunRecord) {
	if rec.Outcome == domain.OutcomeCompleted {
		fmt.Printf("%s %s %s\n", ui.ok("[OK]"), rec.Title, ui.dim(rec.Identifier))
		if lvl, ok := rec.Result["risk_score_level"]; ok {
			fmt.Printf("    level: %v  score: %v\n", lvl, rec.Result["risk_score_percentage"])
		}
		return
	}
	fmt.Printf("%s %s %s\n", ui.err("[FAILED]"), rec.Title, ui.dim(rec.Identifier))
	fmt.Printf("    stage: %s  error: %s\n", rec.Stage, rec.Error)
}

func loadServerConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfigOptional(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAgent(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cliLogger(verbose bool) (*slog.Logger, func() error) {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil }
	}
	return logging.New(os.Stderr, logging.Options{Level: "debug", Format: "text"})
}

// mergeInputs applies key=value overrides to a copy of base. Values that parse
// as integers or floats are stored as numbers.
func mergeInputs(base map[string]any, overrides []string) (map[string]any, error) {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.New("input must be key=value, got " + strconv.Quote(kv))
		}
		v = strings.TrimSpace(v)
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else {
			out[k] = v
		}
	}
	if err := domain.ValidateInput(out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
