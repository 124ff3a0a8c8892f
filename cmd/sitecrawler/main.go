package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/metadata"
	"github.com/PentesterFlow/SiteCrawler/internal/observe"
	"github.com/PentesterFlow/SiteCrawler/internal/output"
	"github.com/PentesterFlow/SiteCrawler/internal/progress"
	"github.com/PentesterFlow/SiteCrawler/internal/shutdown"
	"github.com/PentesterFlow/SiteCrawler/pkg/crawler"
)

var (
	version = "0.1.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Crawl flags
	budget           int
	crawlSitemap     bool
	selector         string
	selectorTimeout  time.Duration
	matchPatterns    []string
	excludePatterns  []string
	cookieFlags      []string
	excludeResources []string
	fetcherName      string
	fastMode         bool
	concurrency      int
	retries          int
	proxy            string
	noProgress       bool

	// Output flags
	outputFile string
	jsonl      bool

	// Run flags
	runID           string
	metadataBackend string
	dbPath          string
	redisAddr       string
	indexType       string
	indexPath       string
	esAddresses     []string
	esIndex         string
	listenAddr      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "SiteCrawler - crawl a site and extract its readable content",
		Long: `SiteCrawler - crawls one site within a fixed request budget and
extracts the title, text and markdown of every page it reaches.

Pages are rendered in headless Chrome or fetched as static HTML. Runs can
report progress to a metadata store and hand their pages to an index.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a site and write its pages",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}

	discoverCmd := &cobra.Command{
		Use:   "discover [url]",
		Short: "Print the URLs a sitemap crawl would start from",
		Args:  cobra.ExactArgs(1),
		RunE:  runDiscover,
	}

	understandCmd := &cobra.Command{
		Use:   "understand [url]",
		Short: "Crawl a site, record progress and index its pages",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnderstand,
	}

	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the stored progress of a run",
		Args:  cobra.NoArgs,
		RunE:  runProgress,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run progress and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&proxy, "proxy", "", "Proxy URL for discovery and page fetching")

	for _, cmd := range []*cobra.Command{crawlCmd, understandCmd} {
		cmd.Flags().IntVarP(&budget, "budget", "b", 50, "Maximum page requests, retries included")
		cmd.Flags().BoolVar(&crawlSitemap, "sitemap", false, "Seed the crawl from the site's sitemaps")
		cmd.Flags().StringVarP(&selector, "selector", "s", "", "CSS selector of the content to extract")
		cmd.Flags().DurationVar(&selectorTimeout, "selector-timeout", 0, "How long to wait for the selector")
		cmd.Flags().StringArrayVar(&matchPatterns, "match", nil, "URL glob to follow (repeatable)")
		cmd.Flags().StringArrayVar(&excludePatterns, "exclude", nil, "URL glob never to visit (repeatable)")
		cmd.Flags().StringArrayVar(&cookieFlags, "cookie", nil, "Cookie as name=value (repeatable)")
		cmd.Flags().StringSliceVar(&excludeResources, "exclude-resource", nil, "File extensions never to load, as pages or sub-resources")
		cmd.Flags().StringVar(&fetcherName, "fetcher", "", "Page fetcher: browser or http")
		cmd.Flags().BoolVar(&fastMode, "fast", false, "Static HTML fetching with a wider pool")
		cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent page visits")
		cmd.Flags().IntVar(&retries, "retries", 0, "Retries per failed page")
		cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	}

	crawlCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	crawlCmd.Flags().BoolVar(&jsonl, "jsonl", false, "Write one page per line")

	discoverCmd.Flags().StringVar(&fetcherName, "fetcher", "", "Page fetcher: browser or http")

	understandCmd.Flags().StringVar(&runID, "run", "", "Run ID (default: random UUID)")
	understandCmd.Flags().StringVar(&indexType, "index", "", "Index target: none, jsonl or elasticsearch")
	understandCmd.Flags().StringVar(&indexPath, "index-path", "", "JSONL index file (default: stdout)")
	understandCmd.Flags().StringSliceVar(&esAddresses, "es-url", nil, "Elasticsearch addresses")
	understandCmd.Flags().StringVar(&esIndex, "es-index", "", "Elasticsearch index name")
	understandCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve progress on this address while running")

	progressCmd.Flags().StringVar(&runID, "run", "", "Run ID")
	progressCmd.MarkFlagRequired("run")

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Listen address")

	for _, cmd := range []*cobra.Command{understandCmd, progressCmd, serveCmd} {
		cmd.Flags().StringVar(&metadataBackend, "metadata", "", "Metadata backend: bolt, redis or memory")
		cmd.Flags().StringVar(&dbPath, "db", "", "bbolt database path")
		cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address")
	}

	rootCmd.AddCommand(crawlCmd, discoverCmd, understandCmd, progressCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}

	sd := shutdown.New(context.Background(), shutdown.Config{Log: newLogger("shutdown")})
	sd.Listen()
	defer sd.Shutdown()

	c, err := crawler.New(crawler.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	sd.RegisterCloser("crawler", c)

	display := attachDisplay(&req)
	result, err := c.Run(sd.Context(), req)
	if display != nil {
		display.Stop()
	}
	if result == nil || (err != nil && !sd.IsShuttingDown()) {
		return fmt.Errorf("crawl failed: %w", err)
	}

	if err := writePages(config, result); err != nil {
		return err
	}

	if display != nil {
		display.PrintSummary(summary(result))
	}
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sd := shutdown.New(context.Background(), shutdown.Config{Log: newLogger("shutdown")})
	sd.Listen()
	defer sd.Shutdown()

	c, err := crawler.New(crawler.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	sd.RegisterCloser("crawler", c)

	urls, err := c.Discover(sd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	for _, u := range urls {
		fmt.Println(u)
	}
	return nil
}

func runUnderstand(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req, err := buildRequest(args[0])
	if err != nil {
		return err
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	sd := shutdown.New(context.Background(), shutdown.Config{Log: newLogger("shutdown")})
	sd.Listen()
	defer sd.Shutdown()
	ctx := sd.Context()

	backends, err := openBackends(ctx, config, false)
	if err != nil {
		return err
	}
	sd.RegisterCloser("metadata", backends)

	opts := []crawler.Option{crawler.WithConfig(config)}
	if backends.datasets != nil {
		opts = append(opts, crawler.WithDatasetStore(backends.datasets))
	}
	c, err := crawler.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	indexer, closeIndexer, err := newIndexer(config, c.Logger())
	if err != nil {
		c.Close()
		return err
	}
	sd.Register("index", func(context.Context) error { return closeIndexer() })

	broadcaster := metadata.NewBroadcaster()
	if listenAddr != "" {
		srv := observe.New(observe.Config{
			Backend:     backends.metadata,
			Broadcaster: broadcaster,
			Metrics:     c.Metrics(),
			Log:         c.Logger(),
		})
		serveErr := make(chan error, 1)
		ready := make(chan string, 1)
		go func() {
			serveErr <- observe.ListenAndServe(ctx, listenAddr, srv, ready)
		}()
		select {
		case addr := <-ready:
			fmt.Fprintf(os.Stderr, "Serving progress on http://%s/runs/%s/progress\n", addr, runID)
		case err := <-serveErr:
			c.Close()
			return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
		}
		sd.Register("observe", func(ctx context.Context) error {
			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	sd.RegisterCloser("crawler", c)

	fmt.Fprintf(os.Stderr, "Run ID: %s\n", runID)

	reporter := metadata.NewReporter(runID, backends.metadata, broadcaster, c.Logger())
	display := attachDisplay(&req)
	result, err := c.Understand(ctx, req, crawler.UnderstandOptions{
		RunID:    runID,
		Reporter: reporter,
		Indexer:  indexer,
	})
	if display != nil {
		display.Stop()
		if result != nil {
			display.PrintSummary(summary(result))
		}
	}
	if err != nil && !sd.IsShuttingDown() {
		return fmt.Errorf("understand failed: %w", err)
	}
	return nil
}

func runProgress(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	backends, err := openBackends(ctx, config, true)
	if err != nil {
		return err
	}
	defer backends.Close()

	store := backends.metadata.Scope(runID)
	current, err := store.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	if len(current) == 0 {
		return fmt.Errorf("run %s not found", runID)
	}

	state, err := metadata.ReadProgress(ctx, store, newLogger("metadata"))
	if err != nil {
		return err
	}

	w := output.NewWriter(os.Stdout, output.Config{Pretty: true})
	return w.WriteResult(state)
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := newLogger("serve")
	sd := shutdown.New(context.Background(), shutdown.Config{Log: log})
	sd.Listen()
	defer sd.Shutdown()

	backends, err := openBackends(sd.Context(), config, true)
	if err != nil {
		return err
	}
	sd.RegisterCloser("metadata", backends)

	srv := observe.New(observe.Config{Backend: backends.metadata, Log: log})
	ready := make(chan string, 1)
	go func() {
		if addr, ok := <-ready; ok {
			fmt.Fprintf(os.Stderr, "Listening on http://%s\n", addr)
		}
	}()
	return observe.ListenAndServe(sd.Context(), listenAddr, srv, ready)
}

// loadConfig builds the configuration from the config file and the flags
// the user set. Flags win.
func loadConfig(cmd *cobra.Command) (*crawler.Config, error) {
	config := crawler.DefaultConfig()
	if configFile != "" {
		var err error
		if config, err = crawler.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	flags := cmd.Flags()
	if fastMode {
		fast := crawler.FastConfig()
		config.Fetcher = fast.Fetcher
		config.Pool = fast.Pool
		config.Content = fast.Content
	}
	if flags.Changed("fetcher") {
		config.Fetcher = fetcherName
	}
	if flags.Changed("concurrency") {
		config.Pool.MaxConcurrency = concurrency
		if config.Pool.DesiredConcurrency > concurrency {
			config.Pool.DesiredConcurrency = concurrency
		}
		if config.Pool.MinConcurrency > concurrency {
			config.Pool.MinConcurrency = concurrency
		}
	}
	if flags.Changed("retries") {
		config.Retry.MaxRetries = retries
	}
	if proxy != "" {
		config.Proxy = proxy
	}
	if flags.Changed("output") {
		config.Output.Path = outputFile
	}
	if flags.Changed("metadata") {
		config.Metadata.Backend = metadataBackend
	}
	if flags.Changed("db") {
		config.Metadata.Path = dbPath
	}
	if flags.Changed("redis") {
		config.Metadata.Redis.Addr = redisAddr
	}
	if flags.Changed("index") {
		config.Index.Type = indexType
	}
	if flags.Changed("index-path") {
		config.Index.Path = indexPath
	}
	if flags.Changed("es-url") {
		config.Index.Addresses = esAddresses
	}
	if flags.Changed("es-index") {
		config.Index.Name = esIndex
	}
	if verbose {
		config.Verbose = true
	}
	if debug {
		config.Debug = true
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func buildRequest(target string) (crawler.CrawlRequest, error) {
	req := crawler.CrawlRequest{
		StartURL:                   target,
		MaxRequestsPerCrawl:        budget,
		CrawlSitemap:               crawlSitemap,
		Selector:                   selector,
		WaitForSelectorTimeout:     selectorTimeout,
		Match:                      matchPatterns,
		Exclude:                    excludePatterns,
		ResourceFileTypeExclusions: excludeResources,
	}

	for _, raw := range cookieFlags {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			return req, fmt.Errorf("invalid cookie %q (want name=value)", raw)
		}
		req.Cookies = append(req.Cookies, crawler.Cookie{
			Name:  strings.TrimSpace(name),
			Value: value,
		})
	}

	return req, req.Validate()
}

// attachDisplay hooks a progress bar into req unless logging is on or the
// bar was disabled.
func attachDisplay(req *crawler.CrawlRequest) *progress.Display {
	if noProgress || verbose || debug {
		return nil
	}
	display := progress.New(os.Stderr)
	display.Start(req.StartURL, req.MaxRequestsPerCrawl)

	next := req.OnProgress
	req.OnProgress = func(ev crawler.ProgressEvent) {
		display.Update(ev.CurrentURL, ev.Succeeded, ev.Failed, ev.InFlight)
		if next != nil {
			next(ev)
		}
	}
	return display
}

func writePages(config *crawler.Config, result *crawler.Result) error {
	format := output.FormatJSON
	if jsonl {
		format = output.FormatJSONL
	}
	w, err := output.Open(output.Config{
		Format:   format,
		Pretty:   config.Output.Pretty,
		FilePath: config.Output.Path,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if jsonl {
		for _, page := range result.Pages {
			if err := w.WriteRecord(page); err != nil {
				return fmt.Errorf("failed to write page: %w", err)
			}
		}
	} else if err := w.WriteResult(result.Pages); err != nil {
		return fmt.Errorf("failed to write pages: %w", err)
	}
	return w.Flush()
}

func summary(result *crawler.Result) progress.Summary {
	return progress.Summary{
		Pages:    result.Stats.Succeeded,
		Failed:   result.Stats.Failed,
		Skipped:  result.Stats.Skipped,
		Dropped:  result.Stats.Dropped,
		Requests: result.Stats.Requests,
		Duration: result.Stats.Duration,
	}
}

func newLogger(component string) *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Component = component
	log := logger.New(cfg)
	if verbose {
		log.SetLevel(logger.InfoLevel)
	}
	if debug {
		log.SetLevel(logger.DebugLevel)
	}
	return log
}
