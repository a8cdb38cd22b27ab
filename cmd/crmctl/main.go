// Package main provides the crmctl command line client for the CRM backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/crm/internal/infrastructure/logger"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// globalOptions are the flags accepted before the command
type globalOptions struct {
	configPath  string
	output      string
	verbose     bool
	showVersion bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts globalOptions

	fs := flag.NewFlagSet("crmctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to the TOML configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to the TOML configuration file (shorthand)")
	fs.StringVar(&opts.output, "output", "json", "Output format: json or yaml")
	fs.StringVar(&opts.output, "o", "json", "Output format (shorthand)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&opts.verbose, "v", false, "Enable debug logging (shorthand)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "crmctl %s (commit %s, built %s)\n", version, gitCommit, buildTime)
		return 0
	}

	if fs.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	cmd, cmdArgs, err := lookup(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return 2
	}

	out, err := newPrinter(opts.output, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	a, err := newApp(ctx, opts, stdin, stderr, out)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing crmctl: %v\n", err)
		return 1
	}
	defer a.Close()

	reported := a.console.errorCount()
	result, err := cmd.run(logger.WithCommand(ctx, cmd.name), a, cmdArgs)
	if err != nil {
		// Failed mutations were already reported by the notifier
		if a.console.errorCount() == reported {
			a.console.alert(err)
		}
		return 1
	}
	if result != nil {
		if err := out.Print(result); err != nil {
			fmt.Fprintf(stderr, "Error writing output: %v\n", err)
			return 1
		}
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `crmctl - CRM administration client

USAGE:
    crmctl [options] <command> [arguments]

DESCRIPTION:
    Manages payments, invoices, catalog, quotes and admin users of the CRM
    backend. Reads go through a local query cache; writes are applied
    optimistically and rolled back when the server rejects them.

    Payloads are JSON objects given as a single argument, or "-" to read
    them from standard input. Unknown fields are rejected.

OPTIONS:
    -config, -c <path>    Path to the TOML configuration file
    -output, -o <format>  Output format: json (default) or yaml
    -verbose, -v          Enable debug logging
    -version              Show version information
    -help, -h             Show this help message

COMMANDS:
`)
	for _, c := range commands {
		fmt.Fprintf(w, "    %-36s %s\n", c.name+" "+c.args, c.summary)
	}
	fmt.Fprintf(w, `
LIST ARGUMENTS:
    -page <n>             Page number (default 1)
    <field>=<value>       Filter, e.g. status=pending event=42

EXAMPLES:
    # Sign in (the password is read from standard input)
    crmctl login ada@example.com

    # List pending payments of an event
    crmctl payments list status=pending event=42

    # Record a payment
    crmctl payments create '{"event":42,"amount":"150.00","due_date":"2025-06-01"}'

    # Deactivate a discount
    crmctl discounts update 7 '{"is_active":false}'

    # Follow invalidations published by other clients and keep a list fresh
    crmctl watch payments
`)
}
