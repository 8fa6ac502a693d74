// Command curator manages the link-curation pipeline.
//
// Usage:
//
//	curator add -kind collect https://example.com/reading-list
//	curator collect -limit 20            # extract links from queued pages
//	curator classify -retry-errors       # judge queued candidates
//	curator retry -kind classify         # requeue errored records
//	curator stats                        # queue status counts
//	curator lookup <url>                 # everything known about one URL
//	curator serve -listen :8080          # read-only HTTP API
//	curator mcp                          # MCP server on stdio
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/curator"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, args); err != nil {
		slog.Error("curator: fatal", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: curator <add|collect|classify|retry|stats|lookup|serve|mcp> [flags]")
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (configPath, logLevel *string) {
	configPath = fs.String("config", "", "path to curator.yaml config file")
	logLevel = fs.String("log-level", "info", "log level: debug, info, warn, error")
	return
}

func setup(configPath, logLevel string) (*curator.Service, *slog.Logger, error) {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := curator.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = curator.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}

	svc, err := curator.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, logger, nil
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return runAdd(ctx, args)
	case "collect":
		return runCollect(ctx, args)
	case "classify":
		return runClassify(ctx, args)
	case "retry":
		return runRetry(ctx, args)
	case "stats":
		return runStats(ctx, args)
	case "lookup":
		return runLookup(ctx, args)
	case "serve":
		return runServe(ctx, args)
	case "mcp":
		return runMCP(ctx, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	kind := fs.String("kind", "collect", "queue to add to: collect or classify")
	source := fs.String("source", "manual", "provenance label stored on new records")
	file := fs.String("file", "", "read URLs from a file, one per line ('-' for stdin)")
	fs.Parse(args)

	urls := fs.Args()
	if *file != "" {
		fromFile, err := readURLFile(*file)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("add: no URLs given")
	}

	svc, logger, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Add(ctx, curator.Kind(*kind), urls, *source)
	if err != nil {
		return err
	}
	for _, bad := range res.Invalid {
		logger.Warn("add: invalid url skipped", "url", bad)
	}
	return printJSON(res)
}

func runCollect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	limit := fs.Int("limit", 0, "max records to process (0 = all new)")
	retryErrors := fs.Bool("retry-errors", false, "requeue errored records before the run")
	minRel := fs.Float64("min-relevancy", 0, "fan-out threshold override (0 = config default)")
	fs.Parse(args)

	svc, _, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Record-level errors are in the stats, not in err: the batch
	// completed, exit 0.
	stats, err := svc.RunCollect(ctx, curator.CollectRunOptions{
		Limit:            *limit,
		MinLinkRelevancy: *minRel,
		RetryErrors:      *retryErrors,
	})
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runClassify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	limit := fs.Int("limit", 0, "max records to process (0 = all new)")
	retryErrors := fs.Bool("retry-errors", false, "requeue errored records before the run")
	minRel := fs.Float64("min-relevancy", 0, "skip records below this extraction-time relevancy (-1 disables the config default)")
	source := fs.String("source", "", "only process records from this source")
	fs.Parse(args)

	svc, _, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	opt := curator.ClassifyRunOptions{
		Limit:       *limit,
		Source:      *source,
		RetryErrors: *retryErrors,
	}
	if *minRel != 0 {
		opt.MinRelevancy = minRel
	}
	stats, err := svc.RunClassify(ctx, opt)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runRetry(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	kind := fs.String("kind", "collect", "queue to requeue: collect or classify")
	statuses := fs.String("statuses", "", "comma-separated statuses to requeue (default: all error statuses)")
	source := fs.String("source", "", "only requeue records from this source")
	includeDone := fs.Bool("include-done", false, "also requeue finished records")
	fs.Parse(args)

	svc, _, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	var sts []string
	if *statuses != "" {
		for _, s := range strings.Split(*statuses, ",") {
			sts = append(sts, strings.TrimSpace(s))
		}
	}
	n, err := svc.Retry(ctx, curator.Kind(*kind), sts, *source, *includeDone)
	if err != nil {
		return err
	}
	return printJSON(map[string]int64{"requeued": n})
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	svc, _, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runLookup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("lookup: exactly one URL expected")
	}

	svc, _, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.Lookup(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(info)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	listen := fs.String("listen", ":8080", "HTTP listen address")
	fs.Parse(args)

	svc, logger, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := &http.Server{
		Addr:         *listen,
		Handler:      svc.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("curator: http listening", "addr", *listen)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	svc, logger, err := setup(*configPath, *logLevel)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "curator", Version: "1.0.0"}, nil)
	svc.RegisterMCP(srv)

	logger.Info("curator: mcp server on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func readURLFile(path string) ([]string, error) {
	var r *os.File
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		urls = append(urls, sc.Text())
	}
	return urls, sc.Err()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
