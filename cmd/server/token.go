package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/wa-session-gateway/internal/config"
	"github.com/jrsteele09/wa-session-gateway/server"
	"github.com/jrsteele09/wa-session-gateway/tenants"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a tenant, or an operator token",
	Example: `  wa-session-gateway token --tenant acme --ttl 720h
  wa-session-gateway token --operator`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, _ := cmd.Flags().GetString("tenant")
		operator, _ := cmd.Flags().GetBool("operator")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		c := config.New(nil)
		if !c.GetRequireAuth() {
			return errors.New("API_JWT_SECRET is not set, the gateway does not check tokens")
		}
		if !operator {
			if err := tenants.ValidateID(tenantID); err != nil {
				return err
			}
		}

		token, err := server.SignTenantToken(c.GetJWTSecret(), tenantID, operator, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("tenant", "", "tenant id the token is scoped to")
	tokenCmd.Flags().Bool("operator", false, "issue an operator token valid for every tenant")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
}
