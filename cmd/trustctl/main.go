// Command trustctl is the operator tool for a goTrust deployment.
//
//	trustctl hash    [-config file] [-stdin]       print an argon2id hash of a prompted password
//	trustctl migrate -postgres DSN                 apply the account and template schema
//	trustctl totp    [-config file] -account NAME  generate a TOTP secret and otpauth URI
//	trustctl audit   -db FILE [-actor ID] [-action A] [-limit N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
)

type command struct {
	name string
	help string
	run  func(ctx context.Context, args []string, env *env) error
}

// env carries the process streams so commands can be tested.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// readSecret reads a secret without echo.
	readSecret func(prompt string) (string, error)
}

var commands = []command{
	{"hash", "hash a password with the configured argon2id parameters", runHash},
	{"migrate", "apply database migrations", runMigrate},
	{"totp", "generate a TOTP secret", runTOTP},
	{"audit", "list audit events from a SQLite audit log", runAudit},
}

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e := &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, readSecret: promptSecret}
	os.Exit(dispatch(ctx, os.Args[1:], e))
}

func dispatch(ctx context.Context, args []string, e *env) int {
	if len(args) == 0 {
		usage(e.stderr)
		return 2
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(ctx, args[1:], e)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
			return 2
		default:
			fmt.Fprintf(e.stderr, "trustctl %s: %v\n", c.name, err)
			return 1
		}
	}
	usage(e.stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: trustctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.help)
	}
}
