package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

const usage = `docsum submits documents for summarization and manages saved results.

Usage:
  docsum submit [flags] FILE...
  docsum show                       show the last displayed result
  docsum saved list
  docsum saved show ID
  docsum saved rename ID LABEL
  docsum saved delete ID
  docsum saved export ID

Run "docsum submit -h" for submission flags.
`

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		errorColor.Fprintf(stderr, "configuration error: %v\n", err)
		return 2
	}
	setupLogging(stderr, cfg.Verbose)

	switch args[0] {
	case "submit":
		err = runSubmit(ctx, cfg, args[1:], stdout)
	case "show":
		err = runShowLast(cfg, args[1:], stdout)
	case "saved":
		err = runSaved(ctx, cfg, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		errorColor.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// setupLogging sends structured logs to stderr, keeping stdout for results.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
