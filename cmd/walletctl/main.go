// Command walletctl is the operator tool of the venue wallet:
// it issues identity tokens for local testing and runs account
// administration that has no public HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/venuewallet/internal/db"
	"github.com/nkiryanov/venuewallet/internal/directory"
	"github.com/nkiryanov/venuewallet/internal/identity"
	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/repository/postgres"
	"github.com/nkiryanov/venuewallet/internal/service/wallet"
)

const usage = `usage: walletctl <command> [flags]

commands:
  token       issue identity token for an account
  provision   create account ahead of the first operation
  archive     archive account, it rejects every further mutation
  award       award loyalty points at a merchant
  reconcile   replay account logs against stored balances
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Getenv, os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "walletctl: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	databaseDSN   string
	directoryFile string
	currency      string
	secretKey     string
	logLevel      string

	account  string
	merchant string
	points   int64
	ttl      time.Duration
}

func run(ctx context.Context, getenv func(string) string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	command := args[0]

	o := options{
		databaseDSN:   getenv("DATABASE_URI"),
		directoryFile: orDefault(getenv("DIRECTORY_FILE"), "config/merchants.yaml"),
		currency:      orDefault(getenv("CURRENCY"), "EUR"),
		secretKey:     getenv("SECRET_KEY"),
		logLevel:      logger.LevelWarn,
	}

	fs := pflag.NewFlagSet("walletctl "+command, pflag.ContinueOnError)
	fs.StringVarP(&o.account, "account", "a", "", "Account id")
	fs.StringVarP(&o.databaseDSN, "database", "d", o.databaseDSN, "Database connection string")
	fs.StringVar(&o.directoryFile, "directory", o.directoryFile, "Merchant directory file")
	fs.StringVarP(&o.currency, "currency", "c", o.currency, "Currency of new accounts")
	fs.StringVarP(&o.secretKey, "secret-key", "s", o.secretKey, "Identity provider secret key")
	fs.StringVarP(&o.logLevel, "log-level", "l", o.logLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&o.merchant, "merchant", "m", "", "Merchant id")
	fs.Int64VarP(&o.points, "points", "p", 0, "Points to award")
	fs.DurationVar(&o.ttl, "ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	accountID, err := parseAccount(command, o.account)
	if err != nil {
		return err
	}

	if command == "token" {
		return issueToken(o, accountID, out)
	}

	svc, closeFn, err := openWallet(ctx, o)
	if err != nil {
		return err
	}
	defer closeFn()

	var result any
	switch command {
	case "provision":
		result, err = keep(svc.ProvisionAccount(ctx, accountID))
	case "archive":
		result, err = keep(svc.ArchiveAccount(ctx, accountID))
	case "award":
		result, err = keep(svc.AwardPoints(ctx, accountID, o.merchant, o.points))
	case "reconcile":
		rec, recErr := svc.Reconcile(ctx, accountID)
		if recErr != nil {
			return recErr
		}
		result = rec
		if !rec.Consistent() {
			err = fmt.Errorf("account %s is inconsistent", accountID)
		}
	default:
		return errUsage
	}
	// inconsistent reconciliation is still printed
	if err != nil && result == nil {
		return err
	}
	if printErr := printJSON(out, result); printErr != nil && err == nil {
		err = printErr
	}

	return err
}

func parseAccount(command string, value string) (uuid.UUID, error) {
	switch command {
	case "token", "provision", "archive", "award", "reconcile":
	default:
		return uuid.Nil, errUsage
	}
	if value == "" {
		if command == "token" {
			return uuid.New(), nil
		}
		return uuid.Nil, errors.New("--account is required")
	}
	return uuid.Parse(value)
}

func issueToken(o options, accountID uuid.UUID, out io.Writer) error {
	p, err := identity.New(identity.Config{SecretKey: o.secretKey, TTL: o.ttl})
	if err != nil {
		return err
	}

	token, err := p.Issue(accountID)
	if err != nil {
		return err
	}

	return printJSON(out, map[string]any{
		"account_id": accountID,
		"token":      token.Value,
		"expires_at": token.ExpiresAt,
	})
}

func openWallet(ctx context.Context, o options) (*wallet.Service, func(), error) {
	if o.databaseDSN == "" {
		return nil, nil, errors.New("database connection string is required")
	}

	l, err := logger.NewTextLogger(o.logLevel)
	if err != nil {
		return nil, nil, err
	}
	dir, err := directory.Load(o.directoryFile)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.ConnectAndMigrate(ctx, db.PoolConfig{DSN: o.databaseDSN, ApplicationName: "walletctl"})
	if err != nil {
		return nil, nil, err
	}

	svc := wallet.NewService(postgres.NewStorage(pool), dir, o.currency, wallet.WithLogger(l))
	return svc, pool.Close, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Result worth printing only if there is no error
func keep[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func orDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}
