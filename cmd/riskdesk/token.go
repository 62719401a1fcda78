package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/riskdesk/pkg/auth"
	"github.com/osvaldoandrade/riskdesk/pkg/auth/hmacjwt"
)

func tokenCmd(ui *ui) *cobra.Command {
	var (
		secret   string
		subject  string
		issuer   string
		audience string
		scopes   []string
		ttl      time.Duration
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:     "token",
		Short:   "Mint an HS256 gateway token",
		Example: "riskdesk token --secret \"$RISKDESK_JWT_SECRET\" --subject ops@example.com --scope riskdesk:read",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret = firstNonEmpty(secret, getenv("RISKDESK_JWT_SECRET", ""))
			if strings.TrimSpace(subject) == "" {
				return errors.New("subject is required")
			}
			tok, err := mintToken(hmacjwt.Config{Secret: secret, Issuer: issuer, Audience: audience}, subject, scopes, ttl)
			if err != nil {
				return err
			}
			if quiet {
				fmt.Println(tok)
				return nil
			}
			fmt.Printf("%s Token for %s (expires in %s)\n", ui.ok("[OK]"), subject, ttl)
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Shared HS256 secret (default $RISKDESK_JWT_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().StringVar(&issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&audience, "audience", "", "aud claim")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeRead, auth.ScopeRun}, "Scopes to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the token")
	return cmd
}

func mintToken(cfg hmacjwt.Config, subject string, scopes []string, ttl time.Duration) (string, error) {
	v, err := hmacjwt.NewValidator(cfg)
	if err != nil {
		return "", err
	}
	return v.Issue(subject, scopes, ttl)
}
