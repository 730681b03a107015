package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
)

const stripeKeyEnv = "CHURNGUARD_STRIPE_IMPORT_KEY"

func newRootCmd(boot bootstrapFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "churnctl",
		Short:         "Operate a churnguard deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newImportCmd(boot),
		newAccountsCmd(boot),
		newMigrateCmd(),
	)
	return root
}

func newImportCmd(boot bootstrapFunc) *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import customers and subscriptions for a tenant",
	}
	cmd.PersistentFlags().StringVar(&userFlag, "user", "", "tenant user id (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	var file string
	csvCmd := &cobra.Command{
		Use:   "csv",
		Short: "Import a CSV export and wait for it to finish",
		Example: `  churnctl import csv --user 6f1c... --file subscriptions.csv
  cat export.csv | churnctl import csv --user 6f1c... --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUser(userFlag)
			if err != nil {
				return err
			}
			in, closeInput, err := openInput(cmd, file)
			if err != nil {
				return err
			}
			defer closeInput()

			return withEnvironment(cmd, boot, func(ctx context.Context, env *environment) error {
				batch, err := env.Imports.ImportCSV(ctx, userID, in)
				return reportBatch(cmd.OutOrStdout(), batch, err)
			})
		},
	}
	csvCmd.Flags().StringVar(&file, "file", "", "path to the CSV file, or - for stdin")
	_ = csvCmd.MarkFlagRequired("file")

	var apiKey string
	stripeCmd := &cobra.Command{
		Use:   "stripe",
		Short: "Sync customers and subscriptions from a Stripe account",
		Long:  "Pulls every customer and subscription with a restricted key. The key falls back to $" + stripeKeyEnv + " and is never stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUser(userFlag)
			if err != nil {
				return err
			}
			key := strings.TrimSpace(apiKey)
			if key == "" {
				key = strings.TrimSpace(os.Getenv(stripeKeyEnv))
			}
			if key == "" {
				return fmt.Errorf("--api-key or $%s is required", stripeKeyEnv)
			}

			return withEnvironment(cmd, boot, func(ctx context.Context, env *environment) error {
				src, err := env.OpenProvider(key)
				if err != nil {
					return fmt.Errorf("open stripe: %w", err)
				}
				batch, err := env.Imports.SyncProvider(ctx, userID, src)
				return reportBatch(cmd.OutOrStdout(), batch, err)
			})
		},
	}
	stripeCmd.Flags().StringVar(&apiKey, "api-key", "", "restricted Stripe key (rk_...)")

	statusCmd := &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show an import batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUser(userFlag)
			if err != nil {
				return err
			}
			batchID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid batch id: %w", err)
			}
			return withEnvironment(cmd, boot, func(ctx context.Context, env *environment) error {
				batch, err := env.Imports.Get(ctx, userID, batchID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), batch)
			})
		},
	}

	cmd.AddCommand(csvCmd, stripeCmd, statusCmd)
	return cmd
}

func newAccountsCmd(boot bootstrapFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect billing accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <account-id>",
		Short: "Print an account's derived billing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			return withEnvironment(cmd, boot, func(ctx context.Context, env *environment) error {
				account, err := env.Accounts.Get(ctx, accountID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), account)
			})
		},
	})
	return cmd
}

func withEnvironment(cmd *cobra.Command, boot bootstrapFunc, fn func(ctx context.Context, env *environment) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := boot(ctx)
	if err != nil {
		return err
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(ctx, env)
}

func parseUser(raw string) (uuid.UUID, error) {
	userID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("--user must be a uuid")
	}
	return userID, nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// reportBatch prints the batch and turns a failed run into a non-zero exit.
func reportBatch(w io.Writer, batch *models.ImportBatch, err error) error {
	if batch != nil {
		if printErr := printJSON(w, batch); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		return err
	}
	if batch != nil && batch.Status == enums.ImportBatchStatusFailed {
		msg := "import failed"
		if batch.ErrorMessage != nil {
			msg += ": " + *batch.ErrorMessage
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
