// Package main is the kioku CLI entry point.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclaw/kioku/internal/cli"
	"github.com/openclaw/kioku/internal/config"
	"github.com/openclaw/kioku/internal/embedding"
	"github.com/openclaw/kioku/internal/extract"
	"github.com/openclaw/kioku/internal/ingest"
	"github.com/openclaw/kioku/internal/models"
	"github.com/openclaw/kioku/internal/server"
	"github.com/openclaw/kioku/internal/source"
	"github.com/openclaw/kioku/internal/state"
	"github.com/openclaw/kioku/internal/store"
	"github.com/openclaw/kioku/internal/watcher"
	"github.com/openclaw/kioku/pkg/utils"
)

var version = "dev"

// defaultConfigPath is resolved against the home directory by config loading.
const defaultConfigPath = ".openclaw/kioku.yaml"

// loadConfig loads config from path. When path is the default, a kioku.yaml
// in the current directory takes precedence (for development). A missing file
// is fine; the defaults describe a working setup.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "kioku.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, defaultConfigPath)
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "stats":
		runStats()
	case "add":
		runAdd()
	case "delete":
		runDelete()
	case "serve":
		runServe()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store   store.VectorStore
	Tracker *state.Tracker
	Config  *config.Config
	Logger  *zap.Logger
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

func initializeComponents(configPath string, debugFlag bool) (*Components, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	embedder, err := embedding.New(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Store.DatabasePath, embedder, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	tracker := state.NewTracker(cfg.StatePath, state.WithLogger(logger))
	return &Components{Store: st, Tracker: tracker, Config: cfg, Logger: logger}, nil
}

// buildCollections assembles the adapters for the selected collections. With
// no selection flags, all three are included.
func buildCollections(cfg *config.Config, logger *zap.Logger, sessions, workspace, skills bool) []ingest.Collection {
	all := !sessions && !workspace && !skills
	var collections []ingest.Collection
	if all || sessions {
		collections = append(collections, ingest.Collection{
			Name:         models.CollectionSessions,
			Adapter:      source.NewTranscriptAdapter(cfg.Sessions.Dir, source.WithTranscriptLogger(logger)),
			ChunkSize:    cfg.Sessions.ChunkSize,
			ChunkOverlap: cfg.Sessions.ChunkOverlap,
		})
	}
	if all || workspace {
		collections = append(collections, ingest.Collection{
			Name: models.CollectionWorkspace,
			Adapter: source.NewTreeAdapter(
				cfg.Workspace.Dir,
				cfg.Workspace.Extensions,
				int64(cfg.Workspace.MaxFileSizeMB)*1024*1024,
				source.WithTreeLogger(logger),
				source.WithExtractor(extract.NewExtractor()),
			),
			ChunkSize:    cfg.Workspace.ChunkSize,
			ChunkOverlap: cfg.Workspace.ChunkOverlap,
		})
	}
	if all || skills {
		collections = append(collections, ingest.Collection{
			Name:         models.CollectionSkills,
			Adapter:      source.NewSkillsAdapter(cfg.Skills.Dirs, source.WithSkillsLogger(logger)),
			ChunkSize:    cfg.Workspace.ChunkSize,
			ChunkOverlap: cfg.Workspace.ChunkOverlap,
		})
	}
	return collections
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	sessions := fs.Bool("sessions", false, "ingest only session transcripts")
	workspace := fs.Bool("workspace", false, "ingest only workspace files")
	skills := fs.Bool("skills", false, "ingest only skill docs")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	components, err := initializeComponents(*configPath, *debug)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	pipeline := ingest.New(
		components.Store,
		components.Tracker,
		ingest.WithLogger(components.Logger),
		ingest.WithBatchSize(components.Config.BatchSize),
	)
	collections := buildCollections(components.Config, components.Logger, *sessions, *workspace, *skills)

	report, err := pipeline.Run(context.Background(), collections)
	if err != nil {
		components.Logger.Error("ingestion run failed", zap.Error(err))
	}
	_ = cli.WriteReport(os.Stdout, report, cli.OutputFormat(*output))
	if err != nil || report.AllFailed() {
		os.Exit(1)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docType := fs.String("type", "", "filter by document type (session, workspace, skill, ...)")
	docSource := fs.String("source", "", "filter by source")
	limit := fs.Int("k", 10, "number of results")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku search [flags] <query>")
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	components, err := initializeComponents(*configPath, false)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	filter := make(map[string]string)
	if *docType != "" {
		filter[models.MetaType] = *docType
	}
	if *docSource != "" {
		filter[models.MetaSource] = *docSource
	}

	results, err := components.Store.Query(context.Background(), query, filter, *limit)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteSearchResults(os.Stdout, results, cli.OutputFormat(*output))
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	components, err := initializeComponents(*configPath, false)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	stats, err := components.Store.Stats(context.Background())
	if err != nil {
		fmt.Printf("Stats failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteStats(os.Stdout, stats, cli.OutputFormat(*output))
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docSource := fs.String("source", "", "source label for the document (required)")
	docType := fs.String("type", string(models.TypeManual), "document type")
	_ = fs.Parse(os.Args[2:])

	if *docSource == "" {
		fmt.Println("Usage: kioku add --source <label> [--type manual] <text | ->")
		os.Exit(1)
	}

	var text string
	if fs.NArg() == 1 && fs.Arg(0) == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("Failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	} else {
		text = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("Nothing to add: text is empty")
		os.Exit(1)
	}

	components, err := initializeComponents(*configPath, false)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	id := "manual:" + uuid.NewString()
	record := store.Record{
		ID:   id,
		Text: text,
		Metadata: map[string]string{
			models.MetaType:   *docType,
			models.MetaSource: *docSource,
		},
	}
	if err := components.Store.Upsert(context.Background(), []store.Record{record}); err != nil {
		fmt.Printf("Add failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document stored: %s\n", id)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docSource := fs.String("source", "", "delete documents with this source")
	docType := fs.String("type", "", "delete documents with this type")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	_ = fs.Parse(os.Args[2:])

	filter := make(map[string]string)
	if *docSource != "" {
		filter[models.MetaSource] = *docSource
	}
	if *docType != "" {
		filter[models.MetaType] = *docType
	}
	if len(filter) == 0 {
		fmt.Println("Usage: kioku delete --source <label> | --type <type> [--yes]")
		os.Exit(1)
	}

	if !*yes {
		fmt.Printf("Delete all documents matching %v? [y/N] ", filter)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	components, err := initializeComponents(*configPath, false)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	deleted, err := components.Store.Delete(context.Background(), filter)
	if err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d documents\n", deleted)
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components, err := initializeComponents(*configPath, *debug)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()
	logger := components.Logger

	srv := server.NewServer(components.Store, &components.Config.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components, err := initializeComponents(*configPath, *debug)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()
	cfg := components.Config
	logger := components.Logger

	pipeline := ingest.New(
		components.Store,
		components.Tracker,
		ingest.WithLogger(logger),
		ingest.WithBatchSize(cfg.BatchSize),
	)
	collections := buildCollections(cfg, logger, false, false, false)

	// Runs are serialized; a change arriving mid-run queues exactly one more.
	var runMu sync.Mutex
	runOnce := func() {
		runMu.Lock()
		defer runMu.Unlock()
		report, err := pipeline.Run(context.Background(), collections)
		if err != nil {
			logger.Error("ingestion run failed", zap.Error(err))
			return
		}
		logger.Info("ingestion run finished",
			zap.String("state", report.State()),
			zap.Int("succeeded", report.Succeeded()),
			zap.Int("failed", report.Failed()))
	}
	runOnce()

	roots := append([]string{cfg.Sessions.Dir, cfg.Workspace.Dir}, cfg.Skills.Dirs...)
	w := watcher.New(roots, func() { go runOnce() },
		watcher.WithLogger(logger),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down...")
}

func printUsage() {
	fmt.Println(`kioku - incremental knowledge indexing for OpenClaw

Usage:
  kioku ingest [flags]            Run the ingestion pipeline
  kioku search [flags] <query>    Search the knowledge store
  kioku stats [flags]             Show store statistics
  kioku add [flags] <text | ->    Add a document by hand
  kioku delete [flags]            Delete documents by source or type
  kioku serve [flags]             Start the HTTP API
  kioku watch [flags]             Re-ingest when sources change
  kioku version                   Show version
  kioku help                      Show this help

Ingest Flags:
  --config string    Config file path (default: ~/.openclaw/kioku.yaml)
  --sessions         Only session transcripts
  --workspace        Only workspace files
  --skills           Only skill docs
  --output string    Output format: text or json (default: text)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path
  --type string      Filter by document type
  --source string    Filter by source
  -k int             Number of results (default: 10)
  --output string    Output format: text or json (default: text)

Add Flags:
  --source string    Source label (required)
  --type string      Document type (default: manual)

Delete Flags:
  --source string    Delete by source
  --type string      Delete by type
  --yes              Skip confirmation

Examples:
  kioku ingest
  kioku ingest --sessions
  kioku search "gateway configuration"
  kioku search --type skill -k 5 "send a message"
  kioku add --source shopping-list "buy more coffee"
  echo "note" | kioku add --source notes -
  kioku delete --source shopping-list --yes
  kioku stats --output json
  kioku serve
  kioku watch`)
}
