// Package main provides the reconcile command, which audits credit balances
// against payment and job history and optionally repairs drifted accounts.
//
// Usage:
//
//	reconcile -user <id> [-repair]
//	reconcile -all [-repair]
//
// The exit status is 2 when drift was found and not repaired.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/maauso/clearmedia-api/internal/config"
	"github.com/maauso/clearmedia-api/internal/store"
)

var errDriftFound = errors.New("balance drift found")

// auditor is the part of store.Store the command uses.
type auditor interface {
	Audit(ctx context.Context, userID string) (store.Audit, error)
	Repair(ctx context.Context, userID string) (store.Audit, error)
	AccountIDs(ctx context.Context) ([]string, error)
}

func main() {
	err := run(os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errDriftFound):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	user := fs.String("user", "", "audit a single user ID")
	all := fs.Bool("all", false, "audit every account")
	repair := fs.Bool("repair", false, "reset drifted balances to the expected value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*user == "") == !*all {
		fs.Usage()
		return errors.New("exactly one of -user or -all is required")
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	users := []string{*user}
	if *all {
		if users, err = s.AccountIDs(ctx); err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
	}

	drifted, err := reconcile(ctx, s, users, *repair, os.Stdout)
	if err != nil {
		return err
	}
	logger.Info("reconciliation finished",
		slog.Int("accounts", len(users)),
		slog.Int("drifted", drifted),
		slog.Bool("repair", *repair),
	)
	if drifted > 0 && !*repair {
		return errDriftFound
	}
	return nil
}

// reconcile audits, and with repair fixes, every user and writes one table
// row per account. It returns the number of drifted accounts.
func reconcile(ctx context.Context, a auditor, users []string, repair bool, out io.Writer) (int, error) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tBALANCE\tGRANTED\tCHARGED\tEXPECTED\tDRIFT\tACTION")

	drifted := 0
	for _, id := range users {
		audit, err := a.Audit(ctx, id)
		if err != nil {
			return drifted, fmt.Errorf("audit %s: %w", id, err)
		}

		action := "ok"
		if audit.Drift() != 0 {
			drifted++
			action = "drift"
			if repair {
				if _, err := a.Repair(ctx, id); err != nil {
					return drifted, fmt.Errorf("repair %s: %w", id, err)
				}
				action = "repaired"
			}
		}

		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%+d\t%s\n",
			audit.UserID, audit.Balance, audit.Granted, audit.Charged, audit.Expected, audit.Drift(), action)
	}
	return drifted, tw.Flush()
}
