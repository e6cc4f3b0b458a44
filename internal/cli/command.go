// Package cli holds the api binary's cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/config"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/di"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/common"
)

type options struct {
	envFile string
	out     io.Writer
}

func NewRootCommand() *cobra.Command {
	opts := &options{out: os.Stdout}
	cmd := &cobra.Command{
		Use:           "api",
		Short:         "Secure loader authentication and licensing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.out = cmd.OutOrStdout()
			return common.LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional KEY=VALUE file applied before config load")
	cmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(opts),
		newLicenseCommand(opts),
		newDBCommand(opts),
		newUserCommand(opts),
	)
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := di.InitializeApp(ctx)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return a.Run(ctx)
		},
	}
}

// openDB loads config and a migrated database for the offline commands.
func openDB(ctx context.Context) (*config.Config, *gorm.DB, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, _, err := observability.NewLogger(ctx, &config.Config{
		LogLevel:        cfg.LogLevel,
		LogFormat:       "text",
		OTELServiceName: cfg.OTELServiceName,
		Env:             cfg.Env,
	}, os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := repository.Open(cfg.DatabaseURL, true)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, logger, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, _, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db)
			_, err = fmt.Fprintln(opts.out, "migrations applied")
			return err
		},
	}
}

func newLicenseCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "license", Short: "License administration"}
	var (
		licenseType string
		maxDevices  int
		days        int
		owner       uint
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Issue a new license key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, logger, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db)
			audit := service.NewAuditRecorder(repository.NewAuditLogRepository(db), logger)
			licenses := service.NewLicenseService(repository.NewLicenseRepository(db), audit,
				service.LicenseConfig{DefaultDurationDays: cfg.LicenseDefaultDays}, logger)
			in := service.GenerateKeyInput{Type: domain.LicenseType(licenseType), MaxDevices: maxDevices}
			if cmd.Flags().Changed("days") {
				in.DurationDays = &days
			}
			if owner > 0 {
				in.OwnerID = &owner
			}
			lic, err := licenses.GenerateKey(cmd.Context(), in)
			if err != nil {
				return err
			}
			expires := "never"
			if lic.ExpiresAt != nil {
				expires = lic.ExpiresAt.Format("2006-01-02T15:04:05Z")
			}
			_, err = fmt.Fprintf(opts.out, "%s type=%s max_devices=%d expires=%s\n", lic.Key, lic.Type, lic.MaxDevices, expires)
			return err
		},
	}
	generate.Flags().StringVar(&licenseType, "type", string(domain.LicenseTypeSubscription), "TRIAL, SUBSCRIPTION or LIFETIME")
	generate.Flags().IntVar(&maxDevices, "max-devices", 1, "device activation limit")
	generate.Flags().IntVar(&days, "days", 0, "duration in days; defaults per license type")
	generate.Flags().UintVar(&owner, "owner", 0, "user id to assign the license to")
	cmd.AddCommand(generate)
	return cmd
}

func newDBCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Database maintenance"}
	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete all users, sessions, licenses and events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			cfg, db, _, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := repository.ResetAll(db, cfg.Env); err != nil {
				return err
			}
			_, err = fmt.Fprintln(opts.out, "database reset")
			return err
		},
	}
	reset.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)
	return cmd
}

func newUserCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "User administration"}
	grant := &cobra.Command{
		Use:   "grant-admin <username>",
		Short: "Give a user the ADMIN role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, _, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB(db)
			user, err := repository.NewUserRepository(db).FindByUsername(args[0])
			if err != nil {
				return fmt.Errorf("find user %s: %w", args[0], err)
			}
			if err := repository.NewRoleRepository(db).AssignToUser(user.ID, domain.RoleAdmin); err != nil {
				return err
			}
			_, err = fmt.Fprintf(opts.out, "granted %s to %s\n", domain.RoleAdmin, user.Username)
			return err
		},
	}
	cmd.AddCommand(grant)
	return cmd
}
