package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Trendyol/supra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "supra",
		Short: "Circuit-guarded HTTP requests from the command line",
		Long: `supra sends named HTTP requests through a circuit breaker.

Requests sharing a name share a circuit, so repeated or concurrent calls show
how the circuit reacts to a failing endpoint.

Examples:
  supra request catalog https://api.example.com/items --json
  supra request orders https://api.example.com/orders -X POST -d '{"id":1}' --compress
  supra request flaky http://localhost:8080 -n 50 -c 5 --metrics-addr :9090`,
		Version:      supra.GetVersion(),
		SilenceUsage: true,
	}

	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve /metrics and /circuits on this address while running")
	flags.Duration("http-timeout", 10*time.Second, "default HTTP timeout")
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("metrics_addr", flags.Lookup("metrics-addr"))
	_ = v.BindPFlag("http_timeout", flags.Lookup("http-timeout"))

	root.AddCommand(newRequestCmd(v, &cfgFile))
	return root
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
