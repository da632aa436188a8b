package cmd

import (
	"fmt"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/auth"
	"github.com/spf13/cobra"
)

// newTokenCommand issues bearer tokens signed with the configured secret.
// Identity management lives outside this service; the command is for local
// development and operator scripts.
func newTokenCommand(global *globalOptions) *cobra.Command {
	var (
		subject string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		Example: `  server token --subject alice
  server token --subject moderator --role staff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--subject is required")
			}
			normalized := auth.NormalizeRole(role)
			if !strings.EqualFold(strings.TrimSpace(role), string(normalized)) {
				return fmt.Errorf("unknown role %q: use %q or %q", role, auth.RoleMember, auth.RoleStaff)
			}

			cfg, err := global.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			manager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := manager.Generate(strings.TrimSpace(subject), normalized)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleMember), "role claim (member or staff)")
	return cmd
}
