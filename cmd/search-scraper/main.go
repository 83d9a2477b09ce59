// Command search-scraper streams search results as JSON lines.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/search-scraper/pkg/auth"
	"github.com/Sternrassler/search-scraper/pkg/client"
	"github.com/Sternrassler/search-scraper/pkg/config"
	"github.com/Sternrassler/search-scraper/pkg/logging"
	"github.com/Sternrassler/search-scraper/pkg/metrics"
	"github.com/Sternrassler/search-scraper/pkg/query"
	"github.com/Sternrassler/search-scraper/pkg/stream"
	"github.com/Sternrassler/search-scraper/pkg/telemetry"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type options struct {
	query        string
	limit        int
	minID        uint64
	saveHeaders  string
	loadHeaders  string
	cacheHeaders bool
	configPath   string
	logLevel     string
	pretty       bool
	trace        bool
	metricsAddr  string

	// Set when the flag was given explicitly.
	limitSet  bool
	minIDSet  bool
	prettySet bool
}

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	// A closed stdout surfaces as EPIPE instead of killing the process.
	signal.Ignore(syscall.SIGPIPE)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "search-scraper",
		Short: "Stream search results as JSON lines",
		Long: `Stream search results as JSON lines, following continuation cursors
until the limit, the id floor or the end of the results is reached.

Settings are read from an optional YAML file (--config) and SCRAPER_*
environment variables, e.g. SCRAPER_RETRY_INTERVAL=30s.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.limitSet = cmd.Flags().Changed("limit")
			opts.minIDSet = cmd.Flags().Changed("min-id")
			opts.prettySet = cmd.Flags().Changed("pretty")
			return run(cmd.Context(), opts, out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.query, "query", "q", "", "Search query")
	f.IntVarP(&opts.limit, "limit", "l", 0, "Maximum number of records to emit")
	f.Uint64Var(&opts.minID, "min-id", 0, "Stop at the first record whose id is below this value")
	f.StringVar(&opts.saveHeaders, "save-headers", "", "Save bootstrapped request headers to `FILE`")
	f.StringVar(&opts.loadHeaders, "load-headers", "", "Load request headers from `FILE` instead of bootstrapping")
	f.BoolVar(&opts.cacheHeaders, "cache-headers", false, "Cache bootstrapped headers in Redis (requires redis.addr)")
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	f.BoolVar(&opts.pretty, "pretty", false, "Human-readable logs on stderr")
	f.BoolVar(&opts.trace, "trace", false, "Write OpenTelemetry spans to stderr")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while scraping")

	cmd.MarkFlagRequired("query")
	cmd.MarkFlagsMutuallyExclusive("save-headers", "load-headers")
	cmd.MarkFlagsMutuallyExclusive("cache-headers", "load-headers")

	return cmd
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.limit < 0 {
		return fmt.Errorf("--limit must be >= 0 (got %d)", opts.limit)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.prettySet {
		cfg.Log.Pretty = opts.pretty
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("cli")

	if opts.trace {
		shutdown, err := telemetry.InitTracer("search-scraper", os.Stderr)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer shutdown(context.Background())
	}

	if opts.metricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, opts.metricsAddr); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	rdb := connectRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	headers, err := obtainHeaders(ctx, opts, cfg, rdb)
	if err != nil {
		return err
	}

	enc, err := query.NewEncoder(cfg.API.Endpoint)
	if err != nil {
		return fmt.Errorf("api.endpoint: %w", err)
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Redis = rdb
	c, err := client.New(clientCfg)
	if err != nil {
		return err
	}
	defer c.Close()

	req := stream.SearchRequest{Query: opts.query}
	if opts.limitSet {
		limit := opts.limit
		req.Limit = &limit
	}
	if opts.minIDSet {
		minID := opts.minID
		req.MinID = &minID
	}

	s := stream.New(req, stream.Deps{
		Encoder: enc,
		Fetcher: c,
		Headers: headers,
	}, stream.WithMaxEmptyPages(cfg.Stream.EmptyPages))

	return emit(ctx, s, out)
}

// connectRedis returns nil when Redis is not configured or unreachable.
func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, continuing without it")
		rdb.Close()
		return nil
	}
	logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	return rdb
}

func obtainHeaders(ctx context.Context, opts options, cfg *config.Config, rdb *redis.Client) (auth.Headers, error) {
	if opts.loadHeaders != "" {
		headers, err := auth.LoadFile(opts.loadHeaders)
		if err != nil {
			return nil, err
		}
		if err := headers.Validate(); err != nil {
			return nil, fmt.Errorf("headers from %s: %w", opts.loadHeaders, err)
		}
		return headers, nil
	}

	var bootstrapper auth.Bootstrapper = auth.NewGuestBootstrapper(cfg.API.Explore, cfg.HTTP.UserAgent, &http.Client{
		Timeout:   cfg.HTTP.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if opts.cacheHeaders {
		if rdb == nil {
			return nil, errors.New("--cache-headers requires a reachable redis.addr")
		}
		bootstrapper = &auth.CachingBootstrapper{
			Store:   auth.NewStore(rdb, cfg.Redis.TTL),
			Profile: cfg.Redis.Profile,
			Next:    bootstrapper,
		}
	}

	headers, err := bootstrapper.Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap headers: %w", err)
	}

	if opts.saveHeaders != "" {
		if err := auth.SaveFile(opts.saveHeaders, headers); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// emit writes one JSON line per record. A closed reader ends the run
// without error.
func emit(ctx context.Context, s *stream.Stream, out io.Writer) error {
	w := bufio.NewWriter(out)

	// Record text is emitted as received, without HTML escaping.
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for rec, err := range s.All(ctx) {
		if err != nil {
			return err
		}

		if err := enc.Encode(rec); err != nil {
			return writeError(err)
		}
		if err := w.Flush(); err != nil {
			return writeError(err)
		}
	}
	return nil
}

func writeError(err error) error {
	if errors.Is(err, syscall.EPIPE) {
		return nil
	}
	return fmt.Errorf("write record: %w", err)
}
