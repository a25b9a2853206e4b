package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mutuelle/internal/auth/password"
	dirservice "mutuelle/internal/directory/service"
	"mutuelle/internal/platform/config"
	"mutuelle/internal/platform/httpserver"
	"mutuelle/internal/platform/logger"
	"mutuelle/internal/platform/postgres"
	"mutuelle/internal/platform/tracing"
	"mutuelle/pkg/requestcontext"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mutuelle",
		Short:         "Mutuelle membership entitlement service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newExpireCmd(),
		newMigrateCmd(),
		newBootstrapAdminCmd(),
		newHashPasswordCmd(),
	)
	return root
}

// setup loads configuration and the logger shared by every command.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracing.Init()
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, a.handler()), log)
			})
			g.Go(func() error {
				return ignoreCanceled(a.sweeper.Run(ctx))
			})
			if a.relay != nil {
				g.Go(func() error {
					return ignoreCanceled(a.relay.Run(ctx))
				})
			}
			log.Info("mutuelle started",
				"addr", cfg.Server.Addr,
				"version", Version,
				"plan_timezone", cfg.Plan.Timezone,
			)
			return g.Wait()
		},
	}
}

func newExpireCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Run one expiry sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			when := time.Now()
			if asOf != "" {
				when, err = time.ParseInLocation(time.DateOnly, asOf, cfg.Plan.Location())
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
			}
			ctx := requestcontext.WithTime(cmd.Context(), when)
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.sweeper.Sweep(ctx, when)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, expired %d, skipped %d\n", res.Checked, len(res.Expired), res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "sweep as of this day (YYYY-MM-DD) instead of now")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errNoDatabase
			}
			pool, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.Apply(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func newBootstrapAdminCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first global administrator",
		Long:  "Creates a global administrator. The password is read from MUTUELLE_ADMIN_PASSWORD or, when unset, from the first line of stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errNoDatabase
			}
			secret, err := readSecret(cmd, "MUTUELLE_ADMIN_PASSWORD")
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			op, err := a.directory.Bootstrap(cmd.Context(), dirservice.CreateOperatorRequest{
				Name:     name,
				Email:    email,
				Password: secret,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created global admin %s (id %d)\n", op.Email, int64(op.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "sign-in email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashpw",
		Short: "Print the bcrypt hash of a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readSecret(cmd, "")
			if err != nil {
				return err
			}
			hash, err := password.Hash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readSecret takes the value of env when set, else the first line of stdin.
func readSecret(cmd *cobra.Command, env string) (string, error) {
	if env != "" {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			return v, nil
		}
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
