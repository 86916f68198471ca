// Command tinymem runs the tinymem coordination server: the HTTP and
// stdio surfaces, the blocking ask/answer rendezvous, and the terminal
// controller a human answers questions from.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/advpropsys/tinymem/internal/config"
	"github.com/advpropsys/tinymem/internal/logging"
	"github.com/advpropsys/tinymem/internal/server"
	"github.com/advpropsys/tinymem/internal/tracing"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var (
	opts     config.Overrides
	exitCode int
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("tinymem:"), err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tinymem",
		Short: "Coordination server for AI coding agents",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&opts.RedisURL, "redis", "", "redis connection URL (default redis://127.0.0.1:6379, env TINYMEM_REDIS_URL)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP listen port (default 3000, env TINYMEM_PORT)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "bearer token required on every authenticated HTTP route (env TINYMEM_TOKEN)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "hostname advertised to stdio clients (default localhost, env TINYMEM_HOST)")
	cmd.Flags().BoolVar(&opts.Headless, "headless", false, "run without the terminal controller")
	cmd.Flags().BoolVar(&opts.MCP, "mcp", false, "serve the stdio tool protocol on stdin/stdout instead of HTTP+TUI")
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tinymem version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "tinymem %s\n", version)
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load(opts)

	if cfg.HTTP.Token == "" {
		return fmt.Errorf("a bearer token is required: pass --token or set TINYMEM_TOKEN")
	}

	shutdownTracer := tracing.Init()
	defer shutdownTracer(context.Background())

	isProd := cfg.Env == "production"
	var log logging.Logger
	if cfg.HTTP.Headless {
		log = logging.New(cfg.LogFile, isProd)
	} else {
		// The TUI owns the terminal; a concurrent console logger would
		// corrupt its rendering, so only the rotated file sink runs.
		log = logging.NewSilent(cfg.LogFile)
	}
	defer log.Sync()

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode = srv.Run(ctx)
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Fprintf(os.Stderr, "%s %s\n", bold(cyan("tinymem")), green("starting"))
	fmt.Fprintf(os.Stderr, "  redis:    %s\n", cfg.Redis.URL)
	if cfg.Stdio.MCP {
		fmt.Fprintf(os.Stderr, "  http:     %s\n", yellow("disabled (--mcp)"))
		fmt.Fprintf(os.Stderr, "  stdio:    enabled\n")
	} else {
		fmt.Fprintf(os.Stderr, "  http:     :%d\n", cfg.HTTP.Port)
		if cfg.HTTP.Headless {
			fmt.Fprintf(os.Stderr, "  tui:      %s\n", yellow("disabled (--headless)"))
		} else {
			fmt.Fprintf(os.Stderr, "  tui:      enabled\n")
		}
	}
	fmt.Fprintf(os.Stderr, "  log file: %s\n", cfg.LogFile)
}
