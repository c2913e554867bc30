package main

import (
	"fmt"

	"github.com/aligovro/newschools-sub000/config"
	"github.com/aligovro/newschools-sub000/internal/auth"
	"github.com/aligovro/newschools-sub000/internal/domain"

	"github.com/spf13/cobra"
)

// tokenCmd issues operator tokens; operator accounts live in the main platform.
func tokenCmd() *cobra.Command {
	var (
		operatorID     uint
		organizationID uint
		role           string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an operator access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != domain.RoleAdmin && role != domain.RoleOrganizationAdmin {
				return fmt.Errorf("role must be %s or %s", domain.RoleAdmin, domain.RoleOrganizationAdmin)
			}
			if role == domain.RoleOrganizationAdmin && organizationID == 0 {
				return fmt.Errorf("--org is required for %s", domain.RoleOrganizationAdmin)
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			token, err := auth.GenerateAccessToken(&cfg.JWT, operatorID, organizationID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&operatorID, "operator", 1, "operator id")
	cmd.Flags().UintVar(&organizationID, "org", 0, "organization id")
	cmd.Flags().StringVar(&role, "role", domain.RoleOrganizationAdmin, "ADMIN or ORGANIZATION_ADMIN")
	return cmd
}
