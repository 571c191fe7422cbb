package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/qorgraph/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("qorgraph", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
qorgraph - builds graph datasets for HLS quality-of-result prediction.

Usage:
  qorgraph [options] [RUN_FILE]

Arguments:
  RUN_FILE
    Path to the .hcl run file describing tool, store, kernels and variants.

Options:
`)
		flagSet.PrintDefaults()
	}

	runFlag := flagSet.String("run", "", "Path to the run file.")
	rFlag := flagSet.String("r", "", "Path to the run file (shorthand).")
	variantFlag := flagSet.String("variant", "", "Comma-separated variants to generate. Defaults to the run file's list.")
	workersFlag := flagSet.Int("workers", 0, "Worker pool size per kernel. 0 uses the run file's value.")
	resumeFlag := flagSet.Bool("resume", false, "Skip candidates whose sample already exists.")
	appendFlag := flagSet.Bool("append", false, "Start indexing after the highest existing sample.")
	listFlag := flagSet.Bool("list", false, "Print the candidate counts of every kernel and exit.")
	probeFlag := flagSet.Bool("probe", false, "Process the first candidate of each kernel without writing samples.")
	writeConfigsFlag := flagSet.String("write-configs", "", "Write every variant's config document to this directory.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and progress server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *runFlag != "" {
		path = *runFlag
	} else if *rFlag != "" {
		path = *rFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Run file determined.", "path", path)

	if path == "" && *writeConfigsFlag == "" {
		slog.Debug("No run file provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *healthPortFlag < 0 || *healthPortFlag > 65535 {
		return nil, false, &ExitError{Code: 2, Message: "invalid healthcheck-port: must be between 0 and 65535"}
	}

	var variants []string
	for _, v := range strings.Split(*variantFlag, ",") {
		if v = strings.TrimSpace(v); v != "" {
			variants = append(variants, v)
		}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		RunPath:         path,
		Variants:        variants,
		Workers:         *workersFlag,
		Resume:          *resumeFlag,
		Append:          *appendFlag,
		List:            *listFlag,
		Probe:           *probeFlag,
		WriteConfigs:    *writeConfigsFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
