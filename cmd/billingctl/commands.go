package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"hotspot-billing/internal/config"
	"hotspot-billing/internal/domain/model"
	notify "hotspot-billing/internal/infra/adapters/notify"
	"hotspot-billing/internal/infra/api"
	pg "hotspot-billing/internal/infra/db/postgres"
	"hotspot-billing/internal/infra/logging"
	"hotspot-billing/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	dev, _ := cmd.Flags().GetBool("dev")
	return config.LoadConfig(path, dev)
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required for this command")
	}
	return pg.NewPgxPool(ctx, cfg.Database.URL, 2)
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Admin.TokenTTL
			}
			tok, err := api.NewAuthManager(cfg.Admin.JWTSecret, ttl).Mint(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringP("subject", "s", "admin", "token subject")
	cmd.Flags().Duration("ttl", 0, "token lifetime (defaults to admin.token_ttl)")
	return cmd
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [phone...]",
		Short: "Show the canonical form of phone numbers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, raw := range args {
				n, err := model.NormalizePhone(raw)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s INVALID (%v)\n", raw, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", raw, n)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d numbers are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func revenueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revenue",
		Short: "Print the revenue report for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			from, err := parseFlagDate(cmd, "from")
			if err != nil {
				return err
			}
			to, err := parseFlagDate(cmd, "to")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			rep, err := usecase.NewReportUseCase(pg.NewPaymentRepo(pool)).Revenue(ctx, from, to)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printRevenue(cmd.OutOrStdout(), rep, asJSON)
		},
	}
	cmd.Flags().String("from", "", "start date (yyyy-mm-dd or RFC 3339); defaults to the epoch")
	cmd.Flags().String("to", "", "end date (yyyy-mm-dd or RFC 3339); defaults to now")
	cmd.Flags().BoolP("json", "j", false, "output as JSON")
	return cmd
}

func parseFlagDate(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %q is not a date", name, v)
	}
	if name == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func printRevenue(w io.Writer, rep *model.RevenueReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintf(w, "Revenue %s .. %s\n", rep.StartDate.Format(time.RFC3339), rep.EndDate.Format(time.RFC3339))
	fmt.Fprintf(w, "  Total:        KES %d\n", rep.TotalRevenue)
	fmt.Fprintf(w, "  Transactions: %d\n", rep.TransactionsCount)
	for name, amount := range rep.RevenueByPlan {
		fmt.Fprintf(w, "  %-20s KES %d\n", name+":", amount)
	}
	return nil
}

func reconcileFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile-file [callback.json]",
		Short: "Replay a saved STK callback body through the reconciler",
		Long: `Reads a raw provider callback body (as stored in callback_logs or captured
from the provider) and reconciles it against the database exactly as the
callback endpoint would. Notifications are logged instead of delivered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			paymentID, _ := cmd.Flags().GetString("payment-id")

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := logging.New(cfg.Log, cfg.Runtime.Dev)
			payments := pg.NewPaymentRepo(pool)
			uc := usecase.NewCallbackUseCase(payments, pg.NewCallbackLogRepo(pool), notify.NewNoopNotifier(logger), logger)
			ack := uc.Reconcile(ctx, paymentID, raw)

			cb, err := model.ParseStkCallback(raw)
			if err != nil {
				return fmt.Errorf("acked %q but body is malformed: %w", ack.ResultDesc, err)
			}
			p, err := payments.FindByAnyCorrelationID(ctx, nil, cb.CorrelationIDs(paymentID))
			if err != nil {
				return fmt.Errorf("payment lookup after reconcile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "payment %s status=%s retries=%d\n", p.ID, p.Status, p.RetryCount)
			return nil
		},
	}
	cmd.Flags().StringP("payment-id", "p", "", "payment id that was embedded in the callback URL")
	return cmd
}
