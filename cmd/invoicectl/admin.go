package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/auth"
	"github.com/facturaIA/invoice-integrity-service/internal/db"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var databaseURL string

	dbURL := func() (string, error) {
		if databaseURL != "" {
			return databaseURL, nil
		}
		if opts.cfg.Database.URL == "" {
			return "", apperrors.ConfigInvalid("database URL not set (use --database-url or DATABASE_URL)")
		}
		return opts.cfg.Database.URL, nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the invoice schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "overrides database.url from config")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := dbURL()
			if err != nil {
				return err
			}
			if err := db.MigrateUp(url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s migrations applied\n", color.GreenString("✓"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return apperrors.Newf(apperrors.CodeInvalidInput, "invalid step count %q", args[0])
				}
				steps = n
			}
			url, err := dbURL()
			if err != nil {
				return err
			}
			if err := db.MigrateDown(url, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s rolled back %d migration(s)\n", color.GreenString("✓"), steps)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := dbURL()
			if err != nil {
				return err
			}
			version, dirty, err := db.MigrationVersion(url)
			if err != nil {
				return err
			}
			state := color.GreenString("clean")
			if dirty {
				state = color.RedString("dirty")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (%s)\n", version, state)
			return nil
		},
	})

	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var tenant, subject, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service JWT",
		Long: `Sign a bearer token with auth.jwt_secret for calling the API.

Example:
  JWT_SECRET=... invoicectl token --tenant acme --subject ap-batch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewAuthenticator(opts.cfg.Auth).GenerateToken(subject, tenant, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant alias; empty uses the public schema")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&role, "role", "", "optional role claim")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
