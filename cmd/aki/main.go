// Command aki runs authority-lease succession experiments and audits their
// event logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/macterra/Axio-sub003/pkg/config"
	"github.com/macterra/Axio-sub003/pkg/kernel"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}
	switch args[1] {
	case "run":
		return runRunCmd(args[2:], stdout, stderr)
	case "sweep":
		return runSweepCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "aki %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "aki %s\n\n", version)
	_, _ = fmt.Fprintln(w, "USAGE:")
	_, _ = fmt.Fprintln(w, "  aki <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "COMMANDS:")
	printCommand(w, "run", "Run one seed (--config, --seed, --db, --artifacts, --redis, --json)")
	printCommand(w, "sweep", "Run a seed range in parallel (--config, --seeds, --parallel)")
	printCommand(w, "verify", "Recompute a stored run's hash chain (--db --run | --artifacts --digest)")
	printCommand(w, "audit", "Audit adversary models (--model, --json)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}

// loadConfig reads path, or starts from the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.ApplyEnv(os.Getenv); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// reportError prints err and maps it to an exit code.
func reportError(stderr io.Writer, err error) int {
	var cfgErr *kernel.ConfigError
	if errors.As(err, &cfgErr) {
		_, _ = fmt.Fprintf(stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
