package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenancy-allocation-service/internal/config"
	"github.com/teresa-solution/tenancy-allocation-service/internal/service"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
)

var errViolations = errors.New("invariant violations found")

func openServices(cfg *config.Config) (*service.Services, func(), error) {
	pg, err := store.NewPostgres(cfg.Database.DSN(), store.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	svc := service.New(pg, nil, service.Options{
		DefaultLeaseDays: cfg.Allocation.DefaultLeaseDays,
		OperationTimeout: cfg.Allocation.OperationTimeout,
		AllowReconsider:  cfg.Allocation.AllowReconsider,
	})
	return svc, func() { pg.Close() }, nil
}

func reconcileCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Scan for unit/tenancy/application inconsistencies and report them",
		Long: "Runs one reconciliation scan and prints every violation as JSON.\n" +
			"Nothing is repaired. Exits non-zero when violations are found.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openServices(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.Reconciler.Check(context.Background())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Clean() {
				return fmt.Errorf("%w: %d", errViolations, len(report.Violations))
			}
			return nil
		},
	}
}

func historyCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:          "history ENTITY ID",
		Short:        "Print the state transitions of an application, unit or tenancy",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}
			svc, closeFn, err := openServices(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			history, err := svc.Reconciler.History(context.Background(), args[0], id)
			if err != nil {
				return err
			}
			for _, tr := range history {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %-11s -> %-11s actor=%s %s\n",
					tr.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), tr.Entity, orNone(tr.FromState), tr.ToState, tr.Actor, tr.Details)
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
