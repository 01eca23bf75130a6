package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Trendyol/supra"
)

type requestFlags struct {
	method          string
	headers         []string
	data            string
	form            string
	json            bool
	timeout         time.Duration
	circuitTimeout  time.Duration
	errorThreshold  int
	volumeThreshold int
	resetTimeout    time.Duration
	compress        bool
	noFollow        bool
	showCurl        bool
	count           int
	concurrency     int
}

func newRequestCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	f := &requestFlags{}

	cmd := &cobra.Command{
		Use:   "request NAME URL",
		Short: "Send a request guarded by the circuit called NAME",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, *cfgFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			return runRequest(cmd.Context(), cmd.OutOrStdout(), cfg, logger, args[0], args[1], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.method, "method", "X", "GET", "HTTP method")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "header in 'Name: value' form, repeatable")
	flags.StringVarP(&f.data, "data", "d", "", "raw request body")
	flags.StringVar(&f.form, "form", "", "URL-encoded form body, used when --data is empty")
	flags.BoolVar(&f.json, "json", false, "send as JSON and parse a JSON response")
	flags.DurationVar(&f.timeout, "timeout", 0, "HTTP timeout for this request (0 uses the default, negative disables)")
	flags.DurationVar(&f.circuitTimeout, "circuit-timeout", 0, "circuit timeout (0 follows the HTTP timeout, negative disables)")
	flags.IntVar(&f.errorThreshold, "error-threshold", 0, "error percentage that opens the circuit")
	flags.IntVar(&f.volumeThreshold, "volume-threshold", 0, "minimum calls in the window before the circuit can open")
	flags.DurationVar(&f.resetTimeout, "reset-timeout", 0, "time an open circuit waits before probing")
	flags.BoolVar(&f.compress, "compress", false, "gzip the request body")
	flags.BoolVar(&f.noFollow, "no-follow", false, "do not follow redirects")
	flags.BoolVar(&f.showCurl, "show-curl", false, "print the equivalent curl command")
	flags.IntVarP(&f.count, "count", "n", 1, "number of requests to send")
	flags.IntVarP(&f.concurrency, "concurrency", "c", 1, "requests in flight at once")

	return cmd
}

func (f *requestFlags) requestOptions(curlFlagHeader string) (*supra.RequestOptions, error) {
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return nil, err
	}
	if f.showCurl && curlFlagHeader != "" {
		headers[curlFlagHeader] = "true"
	}

	opts := &supra.RequestOptions{
		Method:                   f.method,
		Headers:                  headers,
		JSON:                     f.json,
		FollowRedirect:           supra.Bool(!f.noFollow),
		HTTPTimeout:              f.timeout,
		CompressRequest:          f.compress,
		ErrorThresholdPercentage: f.errorThreshold,
		ResetTimeout:             f.resetTimeout,
		VolumeThreshold:          f.volumeThreshold,
		Timeout:                  f.circuitTimeout,
	}
	switch {
	case f.data != "":
		opts.Body = supra.Raw(f.data)
	case f.form != "":
		opts.Form = supra.Raw(f.form)
	}
	return opts, nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw)+1)
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

type outcome struct {
	resp     *supra.ClientResponse
	err      error
	duration time.Duration
}

func runRequest(ctx context.Context, out io.Writer, cfg *config, logger zerolog.Logger, name, url string, f *requestFlags) error {
	if f.count < 1 {
		return errors.New("count must be at least 1")
	}
	if f.concurrency < 1 {
		f.concurrency = 1
	}

	metrics := prometheus.NewRegistry()
	circuits := supra.NewRegistry()
	metrics.MustRegister(supra.NewCircuitCollector(circuits))

	client := supra.New(cfg.clientOptions(logger, metrics, circuits)...)
	defer client.Close()
	if !client.IsValid() {
		return client.ValidationError()
	}

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, metrics, circuits, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	opts, err := f.requestOptions(cfg.Curl.FlagHeader)
	if err != nil {
		return err
	}

	outcomes := make([]outcome, f.count)
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i := 0; i < f.count; i++ {
		i := i
		g.Go(func() error {
			start := time.Now()
			resp, err := client.Request(ctx, name, url, opts)
			outcomes[i] = outcome{resp: resp, err: err, duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	if f.count == 1 {
		return printSingle(out, outcomes[0], client.GlobalOptions(), f.showCurl)
	}
	printSummary(out, name, outcomes, circuits)
	return nil
}

func printSingle(out io.Writer, o outcome, global supra.GlobalOptions, showCurl bool) error {
	if o.resp == nil {
		return o.err
	}

	if showCurl {
		if c := o.resp.Curl(global); c != "" {
			fmt.Fprintln(out, c)
		}
	}
	fmt.Fprintf(out, "HTTP %d (%v)\n", o.resp.Response.StatusCode, o.duration.Round(time.Millisecond))
	fmt.Fprintln(out, o.resp.Body)
	return o.err
}

func printSummary(out io.Writer, name string, outcomes []outcome, circuits *supra.Registry) {
	var ok int
	var total time.Duration
	failures := map[string]int{}
	for _, o := range outcomes {
		total += o.duration
		var clientErr *supra.ClientError
		switch {
		case o.err == nil:
			ok++
		case errors.As(o.err, &clientErr):
			failures[clientErr.Type]++
		default:
			failures["Unknown"]++
		}
	}

	fmt.Fprintf(out, "%d requests, %d succeeded, avg %v\n", len(outcomes), ok, (total / time.Duration(len(outcomes))).Round(time.Millisecond))

	types := make([]string, 0, len(failures))
	for t := range failures {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %s: %d\n", t, failures[t])
	}

	if cb, found := circuits.Get(name); found {
		s := cb.Stats()
		fmt.Fprintf(out, "circuit %s: %s (successes %d, failures %d, timeouts %d, rejects %d, errors %.1f%%)\n",
			s.Name, s.State, s.Successes, s.Failures, s.Timeouts, s.Rejects, s.ErrorPercentage)
	}
}

func serveMetrics(addr string, metrics *prometheus.Registry, circuits *supra.Registry, logger zerolog.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	mux.Handle("/circuits", supra.NewStatsStreamHandler(circuits, time.Second))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
