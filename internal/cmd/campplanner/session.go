package campplanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/campplanner/internal/platform/config"
	"github.com/louisbranch/campplanner/internal/services/camps/session"
	"github.com/spf13/cobra"
)

// newVerifier builds the session verifier from CAMPPLANNER_SESSION_*.
func newVerifier() (*session.Verifier, error) {
	vcfg, err := session.LoadConfigFromEnv(time.Now)
	if err != nil {
		return nil, err
	}
	return session.NewVerifier(vcfg)
}

func newWhoamiCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the session token and print its user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(cfg.SessionToken) == "" {
				return config.Invalidf("session-token is required")
			}
			v, err := newVerifier()
			if err != nil {
				return err
			}
			user, err := v.Verify(cfg.SessionToken)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:    %s\n", user.ID)
			if user.DisplayName != "" {
				fmt.Fprintf(out, "name:  %s\n", user.DisplayName)
			}
			if user.Email != "" {
				fmt.Fprintf(out, "email: %s\n", user.Email)
			}
			if user.Admin {
				fmt.Fprintln(out, "admin: yes")
			}
			return nil
		},
	}
}
