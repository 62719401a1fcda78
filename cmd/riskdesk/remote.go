package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

func requireToken(g *globals) error {
	if strings.TrimSpace(g.token) == "" {
		return errors.New("token is required (run `riskdesk init` or set RISKDESK_TOKEN)")
	}
	return nil
}

func sessionCmd(g *globals, ui *ui) *cobra.Command {
	open := &cobra.Command{
		Use:   "open",
		Short: "Mount a feature board on the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			c := newClient(g.baseURL, g.token)
			info, views, err := c.openSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s Session opened: %s\n", ui.ok("[OK]"), info.ID)
			for _, v := range views {
				printView(ui, v)
			}
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a session and cancel its runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			if err := newClient(g.baseURL, g.token).closeSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Session closed: %s\n", ui.ok("[OK]"), args[0])
			return nil
		},
	}

	var (
		sessionID string
		riskType  string
		every     time.Duration
		keep      bool
	)
	run := &cobra.Command{
		Use:     "run",
		Short:   "Trigger an assessment on the gateway and follow it",
		Example: "riskdesk session run --type protocol_security",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			rt, err := domain.ParseRiskType(riskType)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c := newClient(g.baseURL, g.token)
			id := sessionID
			if id == "" {
				info, _, err := c.openSession(ctx)
				if err != nil {
					return err
				}
				id = info.ID
				if !keep {
					defer func() {
						closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
						defer done()
						_ = c.closeSession(closeCtx, id)
					}()
				}
			}

			view, busy, err := c.runFeature(ctx, id, rt)
			if err != nil {
				return err
			}
			if busy {
				fmt.Printf("%s %s already running; following it\n", ui.warn("[WARN]"), view.Title)
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " " + view.Title + ": " + view.Label
			spin.Start()
			final, err := c.waitFeature(ctx, id, rt, every, func(v workflow.View) {
				spin.Lock()
				spin.Suffix = " " + v.Title + ": " + v.Label
				spin.Unlock()
			})
			spin.Stop()
			if err != nil {
				return err
			}
			printView(ui, final)
			if final.Control == workflow.ControlFailed {
				return fmt.Errorf("%s failed at %s", final.Title, final.Stage)
			}
			return nil
		},
	}
	run.Flags().StringVar(&sessionID, "session", "", "Existing session id (default: open a new one)")
	run.Flags().StringVar(&riskType, "type", "", "Risk type (see `riskdesk features`)")
	run.Flags().DurationVar(&every, "every", 2*time.Second, "How often to refresh the card")
	run.Flags().BoolVar(&keep, "keep", false, "Leave a session opened by this command mounted")
	_ = run.MarkFlagRequired("type")

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Gateway session operations",
	}
	cmd.AddCommand(open, run, closeCmd)
	return cmd
}

func resultsCmd(g *globals, ui *ui) *cobra.Command {
	var (
		riskType string
		limit    int
	)
	list := &cobra.Command{
		Use:     "list",
		Short:   "List recently archived runs",
		Example: "riskdesk results list --type trading --limit 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			c := newClient(g.baseURL, g.token)
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching results..."
			spin.Start()
			recs, err := c.listRuns(cmd.Context(), riskType, limit)
			spin.Stop()
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println(ui.dim("no archived runs"))
				return nil
			}
			for _, rec := range recs {
				fmt.Printf("%s  %-10s %-24s %s\n",
					rec.FinishedAt.Local().Format(time.DateTime),
					outcomeLabel(ui, rec.Outcome),
					string(rec.RiskType),
					rec.Identifier,
				)
			}
			return nil
		},
	}
	list.Flags().StringVar(&riskType, "type", "", "Only runs of this risk type")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	var saveDir string
	get := &cobra.Command{
		Use:   "get <identifier>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(g); err != nil {
				return err
			}
			rec, err := newClient(g.baseURL, g.token).getRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if md, _ := rec.Result["detailed_assessment"].(string); md != "" && saveDir == "" {
				printRun(ui, rec)
				fmt.Println()
				fmt.Println(md)
				return nil
			}
			return reportRuns(cmd.Context(), ui, []domain.RunRecord{rec}, saveDir)
		},
	}
	get.Flags().StringVar(&saveDir, "save-dir", "", "Write the run as JSON and markdown under this directory")

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Archived run results",
	}
	cmd.AddCommand(list, get)
	return cmd
}

func printView(ui *ui, v workflow.View) {
	var tag string
	switch v.Control {
	case workflow.ControlCompleted:
		tag = ui.ok("[DONE]")
	case workflow.ControlFailed:
		tag = ui.err("[FAILED]")
	case workflow.ControlReady:
		tag = ui.dim("[READY]")
	default:
		tag = ui.info("[BUSY]")
	}
	fmt.Printf("%s %s %s\n", tag, v.Title, ui.dim(v.Label))
	if v.Error != "" {
		fmt.Printf("    %s\n", v.Error)
	}
	if md, _ := v.Result["detailed_assessment"].(string); md != "" {
		fmt.Println()
		fmt.Println(md)
	}
}

func outcomeLabel(ui *ui, o domain.RunOutcome) string {
	if o == domain.OutcomeCompleted {
		return ui.ok(string(o))
	}
	return ui.err(string(o))
}
