// tablerag indexes a CSV dataset into a vector store and answers questions over it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/spetr/tablerag/builtin"
	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/internal/factory"
	"github.com/spetr/tablerag/internal/index"
	"github.com/spetr/tablerag/internal/mcp"
	"github.com/spetr/tablerag/internal/rag"
	"github.com/spetr/tablerag/pkg/plugin/host"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

var (
	version    = "0.1.0"
	projectDir string
	logLevel   string
	logFormat  string
	azure      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tablerag",
	Short: "Retrieval-augmented answers over a tabular dataset",
	Long: `tablerag embeds every row of a CSV dataset, stores the vectors in a
persistent vector store and retrieves the closest rows at query time.

It supports:
- Embedding providers: OpenAI (or Azure OpenAI), Groq, Ollama, plugins
- Vector stores: sqlite-vec, bbolt, Qdrant
- Natural-language questions over a SQLite database`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tablerag %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the dataset into the vector store",
	Long: `Embed every dataset row and replace the collection. Without --embed (and
with index.embed false in the config) only the current collection is reported.`,
	Run: func(cmd *cobra.Command, args []string) {
		embed, _ := cmd.Flags().GetBool("embed")
		exit(runIndex(embed))
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search dataset rows by meaning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		exit(runSearch(args[0], limit))
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Answer a question from the closest dataset rows",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		exit(runChat(args[0], limit))
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question with a generated SQL query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showQuery, _ := cmd.Flags().GetBool("show-query")
		exit(runAsk(args[0], showQuery))
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Vector store collection management",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Run: func(cmd *cobra.Command, args []string) {
		exit(runCollectionsList())
	},
}

var collectionsInfoCmd = &cobra.Command{
	Use:   "info [name]",
	Short: "Show collection info (default: configured collection)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		exit(runCollectionsInfo(name))
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a collection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exit(runCollectionsDelete(args[0]))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the dataset and re-index it when it changes",
	Run: func(cmd *cobra.Command, args []string) {
		debounce, _ := cmd.Flags().GetDuration("debounce")
		exit(runWatch(debounce))
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server on stdio",
	Run: func(cmd *cobra.Command, args []string) {
		exit(runServe())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		exit(runConfigInit())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run: func(cmd *cobra.Command, args []string) {
		exit(runConfigValidate())
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin management",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available plugins",
	Run: func(cmd *cobra.Command, args []string) {
		exit(runPluginList())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project root holding .tablerag/ and .env")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json; default from config)")
	rootCmd.PersistentFlags().BoolVar(&azure, "azure", false, "use Azure OpenAI credentials for the openai backend")

	indexCmd.Flags().Bool("embed", false, "re-embed the dataset and replace the collection")

	searchCmd.Flags().IntP("limit", "l", rag.DefaultLimit, "maximum results")
	chatCmd.Flags().IntP("limit", "l", rag.DefaultLimit, "rows used as context")
	askCmd.Flags().Bool("show-query", false, "print the generated SQL query and result")

	watchCmd.Flags().Duration("debounce", 0, "debounce time (default from config)")

	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsInfoCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	pluginCmd.AddCommand(pluginListCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pluginCmd)
}

// setupLogging configures the default logger. Flags win over the config file.
func setupLogging(cmd *cobra.Command) {
	level, format := logLevel, logFormat
	if level == "" || format == "" {
		if cfg, _, err := config.Load(projectDir); err == nil {
			if level == "" {
				level = cfg.Logging.Level
			}
			if format == "" {
				format = cfg.Logging.Format
			}
		}
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slogLevel}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// exit terminates the process with status 1 when err is set. Commands return
// their errors so that deferred cleanup has run by the time exit is called.
func exit(err error) {
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func runIndex(embed bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	progress := func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rEmbedding rows: %d/%d", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}

	a, err := openApp(ctx, appOptions{onProgress: progress})
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}
	defer a.Close()

	start := time.Now()
	var info *types.CollectionInfo
	if embed || a.cfg.Index.Embed {
		info, err = a.rag.ForceReindex(ctx)
	} else {
		info, err = a.rag.Reindex(ctx)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	printInfo(info)
	fmt.Printf("Duration:    %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runSearch(query string, limit int) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}
	defer a.Close()

	results := a.rag.Search(ctx, query, limit)
	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	for i, r := range results {
		fmt.Printf("\n=== Result %d (score: %.3f) ===\n", i+1, r.Score)
		fmt.Printf("ID: %s", r.ID)
		if src, ok := r.Metadata["source"]; ok {
			fmt.Printf("  Source: %v", src)
		}
		fmt.Printf("\n\n%s\n", strings.TrimRight(r.Text, "\n"))
	}
	return nil
}

func runChat(question string, limit int) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, appOptions{generation: true, required: true})
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}
	defer a.Close()

	answer, docs, err := a.rag.Answer(ctx, question, limit)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	fmt.Println(strings.TrimSpace(answer))
	if len(docs) > 0 {
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		fmt.Printf("\nSources: %s\n", strings.Join(ids, ", "))
	}
	return nil
}

func runAsk(question string, showQuery bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}
	defer a.Close()

	agent, err := a.sqlAgent()
	if err != nil {
		return fmt.Errorf("failed to create SQL agent: %w", err)
	}

	ans, err := agent.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if showQuery {
		fmt.Printf("SQL Query:\n%s\n\nSQL Result:\n%s\n\n", ans.Query, ans.Result)
	}
	fmt.Println(ans.Answer)
	return nil
}

// openStore connects only the configured vector store.
func openStore(ctx context.Context) (*config.Config, provider.VectorStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := factory.NewVectorDBFactory(cfg).Create(cfg.VectorDB.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect store: %w", err)
	}
	return cfg, store, nil
}

func runCollectionsList() error {
	ctx := context.Background()
	_, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Disconnect()

	names, err := store.ListAllCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No collections. Run 'tablerag index --embed' to create one.")
		return nil
	}
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runCollectionsInfo(name string) error {
	ctx := context.Background()
	cfg, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Disconnect()

	if name == "" {
		name = cfg.VectorDB.Collection
	}
	info, err := store.GetCollectionInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}
	printInfo(info)
	return nil
}

func runCollectionsDelete(name string) error {
	ctx := context.Background()
	_, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Disconnect()

	if err := store.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	fmt.Printf("Deleted collection %s\n", name)
	return nil
}

func printInfo(info *types.CollectionInfo) {
	fmt.Println("=== Collection ===")
	fmt.Printf("Name:        %s\n", info.Name)
	fmt.Printf("Rows:        %d\n", info.Count)
	fmt.Printf("Vector size: %d\n", info.VectorSize)
	fmt.Printf("Distance:    %s\n", info.Distance)
	if len(info.Metadata) > 0 {
		data, _ := json.Marshal(info.Metadata)
		fmt.Printf("Metadata:    %s\n", data)
	}
}

func runWatch(debounce time.Duration) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := openApp(ctx, appOptions{embed: true})
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}
	defer a.Close()

	if debounce <= 0 {
		debounce = a.cfg.Index.Debounce
	}
	datasetPath := a.cfg.DatasetPath(a.cfg.Data.Dataset)

	watcher, err := index.NewWatcher(index.WatcherConfig{
		DatasetPath:  datasetPath,
		Reindexer:    a.rag,
		DebounceTime: debounce,
		OnReindex: func(info *types.CollectionInfo, err error) {
			if err != nil {
				fmt.Printf("[watch] Re-index failed: %v\n", err)
				return
			}
			fmt.Printf("[watch] Indexed %d rows into %s\n", info.Count, info.Name)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	fmt.Printf("Watching %s for changes (press Ctrl+C to stop)\n", datasetPath)

	// Run watcher (blocks until context is cancelled)
	if err := watcher.Watch(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("watcher stopped")
			return nil
		}
		return fmt.Errorf("watcher error: %w", err)
	}
	return nil
}

func runServe() error {
	ctx, cancel := signalContext()
	defer cancel()

	slog.Info("starting MCP server")
	a, err := openApp(ctx, appOptions{generation: true})
	if err != nil {
		return fmt.Errorf("failed to create providers: %w", err)
	}
	defer a.Close()

	agent, err := a.sqlAgent()
	if err != nil {
		slog.Warn("SQL agent unavailable", "error", err)
	}

	srv, err := mcp.New(mcp.Config{
		Config:  a.cfg,
		RAG:     a.rag,
		Agent:   agent,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ServeStdio() }()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
		return nil
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

func runConfigInit() error {
	path := config.ConfigPath(projectDir)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
		return nil
	}
	if err := config.Save(projectDir, config.DefaultConfig()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Created config at %s\n", path)
	return nil
}

func runConfigValidate() error {
	cfg, warnings, err := config.Load(projectDir)
	if err != nil {
		return err
	}

	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("Error: %v\n", e)
		}
		return fmt.Errorf("configuration has %d error(s)", len(errs))
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("Embedding:  %s/%s\n", cfg.Embedding.Backend, cfg.Embedding.ModelID)
	fmt.Printf("Generation: %s/%s\n", cfg.Generation.Backend, cfg.Generation.ModelID)
	fmt.Printf("Vector DB:  %s (collection %s)\n", cfg.VectorDB.Backend, cfg.VectorDB.Collection)
	fmt.Printf("Dataset:    %s\n", cfg.DatasetPath(cfg.Data.Dataset))
	fmt.Printf("SQL DB:     %s\n", cfg.SQLDatabasePath(cfg.Data.DatabaseSQL))
	fmt.Printf("Embedding backends:    %s\n", strings.Join(provider.DefaultRegistry.ListEmbeddings(), ", "))
	fmt.Printf("Vector store backends: %s\n", strings.Join(provider.DefaultRegistry.ListVectorStores(), ", "))
	return nil
}

func runPluginList() error {
	cfg, _, err := config.Load(projectDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	manager := host.NewManager(cfg.PluginsDir())

	available, err := manager.Discover()
	if err != nil {
		return fmt.Errorf("failed to discover plugins: %w", err)
	}

	fmt.Println("=== Available Plugins ===")
	fmt.Printf("Plugins directory: %s\n\n", manager.Dir())

	if len(available) == 0 {
		fmt.Println("No plugins found.")
		fmt.Println("\nTo install a plugin:")
		fmt.Println("  1. Build or download a plugin binary")
		fmt.Println("  2. Copy it to the plugins directory")
		fmt.Println("  3. Make it executable (chmod +x)")
		return nil
	}

	for _, p := range available {
		marker := ""
		if p.Name == cfg.Embedding.Plugin {
			marker = " (configured)"
		}
		fmt.Printf("  - %s (%d bytes)%s\n", p.Name, p.Size, marker)
	}

	fmt.Println("\nTo use a plugin for embeddings, set in config.yaml:")
	fmt.Println("  embedding:")
	fmt.Println("    backend: plugin")
	fmt.Println("    plugin: <name>")
	fmt.Println("    model_id: <model passed to the plugin>")
	return nil
}
