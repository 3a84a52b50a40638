package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"sessiond/cmd/internal/app/migrations"
	"sessiond/cmd/security/token"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the sessiond CLI. Running it without a subcommand serves HTTP.
func NewRootCommand(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "sessiond",
		Short:         "Session token service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.SetContext(ctx)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newKeygenCommand())
	return root
}

func serve(ctx context.Context) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}

	databaseURL := func() (string, error) {
		cfg := LoadConfig()
		if cfg.DatabaseURL == "" {
			return "", errors.New("SESSIOND_DATABASE_URL is required")
		}
		return cfg.DatabaseURL, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrations.Up(url); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), url)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (all of them unless --steps is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			if err := migrations.Down(url, steps); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), url)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back; 0 rolls back everything")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), url)
		},
	})

	return cmd
}

func printVersion(w io.Writer, url string) error {
	v, dirty, err := migrations.Version(url)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "version=%d dirty=%t\n", v, dirty)
	return err
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh HMAC key and PASETO v4 secret key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeKeys(cmd.OutOrStdout())
		},
	}
}

func writeKeys(w io.Writer) error {
	key, err := token.RandomKey(token.MinHMACKeyBytes)
	if err != nil {
		return err
	}
	secret := paseto.NewV4AsymmetricSecretKey()

	_, err = fmt.Fprintf(w, "%s=%s\nSESSIOND_PASETO_V4_SECRET_KEY_HEX=%s\n",
		token.HMACEnvKey, base64.RawURLEncoding.EncodeToString(key), secret.ExportHex())
	return err
}
