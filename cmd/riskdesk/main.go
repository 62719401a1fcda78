package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// globals carries the persistent flags after profile and env resolution.
type globals struct {
	baseURL     string
	token       string
	profileName string
	serverCfg   string
}

func main() {
	_ = godotenv.Load()

	g := &globals{
		baseURL:     getenv("RISKDESK_BASE_URL", "http://localhost:8080"),
		token:       getenv("RISKDESK_TOKEN", ""),
		profileName: getenv("RISKDESK_PROFILE", ""),
		serverCfg:   getenv("RISKDESK_CONFIG_PATH", ""),
	}
	ui := newUI()

	root := newRootCmd(g, ui)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func newRootCmd(g *globals, ui *ui) *cobra.Command {
	root := &cobra.Command{
		Use:   "riskdesk",
		Short: "riskdesk CLI",
		Long:  "riskdesk CLI for running risk assessments and reading archived results.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&g.baseURL, "base-url", g.baseURL, "Base URL of the riskdesk gateway")
	root.PersistentFlags().StringVar(&g.token, "token", g.token, "Bearer token for the gateway")
	root.PersistentFlags().StringVar(&g.profileName, "profile", g.profileName, "Config profile")
	root.PersistentFlags().StringVar(&g.serverCfg, "config", g.serverCfg, "Server YAML config used by local runs")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(g.profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") && strings.TrimSpace(os.Getenv("RISKDESK_BASE_URL")) == "" && prof.BaseURL != "" {
			g.baseURL = prof.BaseURL
		}
		if !flags.Changed("token") && strings.TrimSpace(os.Getenv("RISKDESK_TOKEN")) == "" && prof.Token != "" {
			g.token = prof.Token
		}
		if !flags.Changed("config") && strings.TrimSpace(os.Getenv("RISKDESK_CONFIG_PATH")) == "" && prof.ServerConfig != "" {
			g.serverCfg = prof.ServerConfig
		}
		if !flags.Changed("profile") && g.profileName == "" && active != "" {
			g.profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(g, ui))
	root.AddCommand(featuresCmd(ui))
	root.AddCommand(assessCmd(g, ui))
	root.AddCommand(sessionCmd(g, ui))
	root.AddCommand(resultsCmd(g, ui))
	root.AddCommand(tokenCmd(ui))
	return root
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("riskdesk")
	return fmt.Sprintf(`%s: risk assessment workflows

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  riskdesk init
  riskdesk features
  riskdesk assess run --type trading --save-dir ./reports
  riskdesk assess all
  riskdesk session run --type hedge_fund
  riskdesk results list --type trading --limit 5
  riskdesk token --secret "$RISKDESK_JWT_SECRET" --subject ops@example.com

`, title, configPath())
}
