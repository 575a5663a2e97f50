package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/internal/logging"
	"github.com/MrEthical07/goTrust/store/memory"
	"github.com/MrEthical07/goTrust/store/postgres"
	"github.com/MrEthical07/goTrust/store/sqlite"
)

var readPassword = term.ReadPassword

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func loadConfig(path string) (goTrust.Config, error) {
	if path == "" {
		return goTrust.DefaultConfig(), nil
	}
	return goTrust.LoadConfig(path)
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet("trustctl "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func runHash(_ context.Context, args []string, e *env) error {
	fs := newFlagSet("hash", e)
	configPath := fs.String("config", "", "config file with password parameters")
	fromStdin := fs.Bool("stdin", false, "read the password from the first line of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	hasher, err := goTrust.NewPasswordHasher(cfg)
	if err != nil {
		return err
	}

	var secret string
	if *fromStdin {
		line, err := bufio.NewReader(e.stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	} else {
		first, err := e.readSecret("Password: ")
		if err != nil {
			return err
		}
		again, err := e.readSecret("Repeat: ")
		if err != nil {
			return err
		}
		if first != again {
			return errors.New("passwords do not match")
		}
		secret = first
	}

	hash, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, hash)
	return nil
}

func runMigrate(ctx context.Context, args []string, e *env) error {
	fs := newFlagSet("migrate", e)
	dsn := fs.String("postgres", os.Getenv("GOTRUST_POSTGRES_DSN"), "postgres DSN")
	timeout := fs.Duration("timeout", 10*time.Second, "connect timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		fmt.Fprintln(e.stderr, "trustctl migrate: -postgres is required")
		return errUsage
	}

	db, err := postgres.Open(ctx, *dsn, *timeout)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, "migrations applied")
	return nil
}

func runTOTP(_ context.Context, args []string, e *env) error {
	fs := newFlagSet("totp", e)
	configPath := fs.String("config", "", "config file with TOTP parameters")
	account := fs.String("account", "", "account name shown in the authenticator app")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		fmt.Fprintln(e.stderr, "trustctl totp: -account is required")
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// Only the TOTP parameters matter here.
	cfg.TOTP.Enabled = true
	cfg.Biometric.Enabled = false
	engine, err := goTrust.New().
		WithConfig(cfg).
		WithLogger(logging.Discard()).
		WithAccountStore(memory.NewAccounts()).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	secret, uri, err := engine.GenerateTOTP(*account)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "secret: %s\nuri:    %s\n", secret, uri)
	return nil
}

func runAudit(ctx context.Context, args []string, e *env) error {
	fs := newFlagSet("audit", e)
	path := fs.String("db", os.Getenv("GOTRUST_AUDIT_DB"), "SQLite audit database")
	var f sqlite.Filter
	fs.StringVar(&f.ActorID, "actor", "", "actor ID")
	fs.StringVar(&f.Action, "action", "", "action")
	fs.IntVar(&f.Limit, "limit", 50, "maximum events")
	fs.IntVar(&f.Offset, "offset", 0, "events to skip")
	since := fs.Duration("since", 0, "only events newer than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		fmt.Fprintln(e.stderr, "trustctl audit: -db is required")
		return errUsage
	}
	if _, err := os.Stat(*path); err != nil {
		return err
	}
	if *since > 0 {
		f.Since = time.Now().Add(-*since)
	}

	auditLog, err := sqlite.Open(ctx, *path)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	events, err := auditLog.List(ctx, f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(e.stdout)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
