package commands

import (
	"context"
	"errors"
	"fide-scraper/internal/components/chrono"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/config"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	inputFile  string
	outputFile string
	noNotify   bool
	dumpHTTP   string
)

// shutdown flushes telemetry exporters, it is set once the config is loaded.
var shutdown telemetry.Shutdown

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.json5", "The config file to read, a missing file is not an error.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug reports.")
	flags.StringVar(&inputFile, "input", "", "The roster of FIDE IDs to process (overrides FIDE_INPUT_FILE).")
	flags.StringVar(&outputFile, "output", "", "The rating history ledger (overrides FIDE_OUTPUT_FILE).")
	flags.BoolVar(&noNotify, "no-notify", false, "Do not send emails or post to the ratings api.")
	flags.StringVar(&dumpHTTP, "dump-http", "", "Write every http exchange to this directory.")
}

var rootCmd = &cobra.Command{
	Use:   "fide-scraper [FIDE_ID]",
	Short: "fide-scraper tracks the FIDE rating history of a roster of players.",
	Long: `Without arguments, every player in the roster is fetched, new monthly
ratings are merged into the ledger and the players are notified.

With a FIDE ID, the current ratings of that player are printed.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAppFromFlags(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			return a.lookup(cmd.Context(), args[0])
		}
		return a.batch(cmd.Context())
	},
}

// exitError carries the process exit code, err may be nil when everything
// worth saying was already printed.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func exit(code int, err error) error {
	return exitError{code: code, err: err}
}

// exitCode returns the process exit code for the error a command returned.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 2
}

func newAppFromFlags(cmd *cobra.Command) (*app, error) {
	env, err := config.EnvWithDotEnv(".env")
	if err != nil {
		return nil, exit(2, err)
	}
	cfg, err := config.Load(configPath, env)
	if err != nil {
		return nil, exit(2, fmt.Errorf("invalid configuration: %w", err))
	}
	if inputFile != "" {
		cfg.InputFile = inputFile
	}
	if outputFile != "" {
		cfg.OutputFile = outputFile
	}
	for _, warning := range cfg.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", warning)
	}

	shutdown, err = telemetry.SetupOtel(cmd.Context(), "fide-scraper", cfg.Otlp)
	if err != nil {
		return nil, exit(2, fmt.Errorf("setup telemetry: %w", err))
	}

	a := &app{
		config: cfg,
		notify: !noNotify,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		time:   chrono.NewStandardTime(cfg.Location),
		newTel: func(runID string) telemetry.API {
			return telemetry.NewSlogAPI("run_id", runID)
		},
	}
	if dumpHTTP != "" {
		output, err := telemetry.NewFilesystemOutput(dumpHTTP)
		if err != nil {
			return nil, exit(2, fmt.Errorf("create http dump directory: %w", err))
		}
		a.output = output
	}
	return a, nil
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	flushTelemetry()
	if err == nil {
		return
	}
	var exitErr exitError
	if !errors.As(err, &exitErr) || exitErr.err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}
	os.Exit(exitCode(err))
}

func flushTelemetry() {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err.Error())
	}
}
