package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type profile struct {
	BaseURL string `yaml:"baseUrl"`
	Token   string `yaml:"token"`
	// ServerConfig is the gateway YAML that local runs read agent settings from.
	ServerConfig string `yaml:"serverConfig,omitempty"`
	SaveDir      string `yaml:"saveDir,omitempty"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func initCmd(g *globals, ui *ui) *cobra.Command {
	var (
		baseURL   string
		token     string
		serverCfg string
		saveDir   string
		noPrompt  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(g.profileName, cfg)
			prof := cfg.Profiles[active]

			baseURL = firstNonEmpty(baseURL, prof.BaseURL, "http://localhost:8080")
			serverCfg = firstNonEmpty(serverCfg, prof.ServerConfig)
			saveDir = firstNonEmpty(saveDir, prof.SaveDir)

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Gateway URL", baseURL)
				serverCfg = prompt(reader, "Server config for local runs (optional)", serverCfg)
				saveDir = prompt(reader, "Report directory (optional)", saveDir)
				if token == "" {
					fmt.Printf("%s current token %s\n", ui.dim("[i]"), maskToken(prof.Token))
					v, err := promptSecret("Bearer token (blank keeps current)")
					if err != nil {
						return err
					}
					token = v
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.ServerConfig = strings.TrimSpace(serverCfg)
			prof.SaveDir = strings.TrimSpace(saveDir)
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || g.profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "gateway", "", "Gateway URL stored in the profile")
	cmd.Flags().StringVar(&token, "set-token", "", "Bearer token stored in the profile")
	cmd.Flags().StringVar(&serverCfg, "server-config", "", "Server config path stored in the profile")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "Default report directory")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Do not prompt; use flags only")
	return cmd
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("RISKDESK_CLI_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".riskdesk", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("RISKDESK_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return "", nil
		}
		return strings.TrimSpace(line), nil
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
