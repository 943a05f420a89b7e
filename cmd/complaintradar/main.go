package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/ComplaintRadar/internal/collect"
	"github.com/TobiSchelling/ComplaintRadar/internal/config"
	"github.com/TobiSchelling/ComplaintRadar/internal/database"
	"github.com/TobiSchelling/ComplaintRadar/internal/fetch"
	"github.com/TobiSchelling/ComplaintRadar/internal/llm"
	"github.com/TobiSchelling/ComplaintRadar/internal/pipeline"
	"github.com/TobiSchelling/ComplaintRadar/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "complaintradar",
	Short:   "Find and summarize complaints in social media posts",
	Long:    "ComplaintRadar collects forum posts, classifies complaints with an LLM, and reports sentiment insights per category.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		l, err := newLogger(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	if debug {
		lvl = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("complaintradar", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/complaintradar/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, categories, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", database.GetToday())
		fmt.Println("Posts:")
		fmt.Printf("  Total collected: %d\n", stats.TotalPosts)
		fmt.Printf("  With body: %d\n", stats.PostsWithBody)
		fmt.Println("\nAnalyses:")
		fmt.Printf("  Tasks: %d\n", stats.Tasks)
		fmt.Printf("  Failed: %d\n", stats.FailedTasks)
		fmt.Println("\nSentiment history:")
		fmt.Printf("  Observations: %d\n", stats.HistoryRows)
		fmt.Printf("  Days: %d\n", stats.HistoryDays)
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect posts from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()
		return collectPosts(ctx, db)
	},
}

func collectPosts(ctx context.Context, db *database.DB) error {
	fmt.Println("Collecting posts from sources...")
	result, err := collect.NewCollector(cfg, db, logger).Collect(ctx)
	if err != nil {
		return fmt.Errorf("collecting: %w", err)
	}

	fmt.Println("\nCollection complete:")
	fmt.Printf("  Total found: %d\n", result.TotalFound)
	fmt.Printf("  New posts: %d\n", result.NewPosts)
	fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

	if len(result.Sources) > 0 {
		fmt.Println("\nPosts by source:")
		type kv struct {
			key string
			val int
		}
		var sorted []kv
		for k, v := range result.Sources {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
		for _, s := range sorted {
			fmt.Printf("  %s: %d\n", s.key, s.val)
		}
	}

	if !cfg.Sources.FetchBodies {
		return nil
	}
	fetched, err := fetch.NewBodyFetcher(db, 0, cfg.Sources.UserAgent, logger).FetchMissingBodies(ctx)
	if err != nil {
		return fmt.Errorf("fetching bodies: %w", err)
	}
	fmt.Printf("\nBodies: %d fetched, %d failed, %d skipped\n", fetched.Fetched, fetched.Failed, fetched.Skipped)
	return nil
}

// --- run command ---

var (
	dryRun    bool
	inputPath string
	outPath   string
	startDate string
	endDate   string
	noCollect bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze posts: preprocess -> validate -> categorize -> verify -> insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		posts, err := loadInputs(ctx, db)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Println("No posts to analyze.")
			return nil
		}

		var provider llm.Provider = offlineProvider{}
		if !dryRun {
			provider = newProvider()
			if provider == nil {
				return fmt.Errorf("no LLM provider available")
			}
		}
		analyzer, err := pipeline.New(cfg, provider, db, logger)
		if err != nil {
			return err
		}

		data := pipeline.FromInputs(posts)
		var result *pipeline.Result
		if dryRun {
			result, err = analyzer.DryRun(data)
		} else {
			result, err = analyzer.Analyze(ctx, data, uuid.NewString())
		}
		for i, step := range result.Steps {
			fmt.Printf("\nStep %d: %s\n  %s\n", i+1, step.Name, step.Summary)
		}
		if err != nil {
			return err
		}
		if dryRun {
			return nil
		}

		path, err := writeResult(result)
		if err != nil {
			return err
		}
		fmt.Printf("\nAnalysis complete: %d complaints in %d posts. Result written to %s\n",
			result.Complaints, result.Input, path)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without calling the LLM")
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON file of posts to analyze instead of stored posts")
	runCmd.Flags().StringVarP(&outPath, "output", "o", "", "Where to write the result JSON (default: data dir)")
	runCmd.Flags().StringVar(&startDate, "start", "", "First day of stored posts to analyze (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&endDate, "end", "", "Last day of stored posts to analyze (YYYY-MM-DD)")
	runCmd.Flags().BoolVar(&noCollect, "no-collect", false, "Analyze stored posts without collecting first")
}

// loadInputs reads posts from --input, or collects and loads stored posts
// for --start/--end or the configured days_back window.
func loadInputs(ctx context.Context, db *database.DB) ([]pipeline.PostInput, error) {
	if inputPath != "" {
		return readInputFile(inputPath)
	}

	period := database.LastDays(cfg.Sources.DaysBack)
	if startDate != "" {
		p, err := database.ParsePeriod(startDate, endDate)
		if err != nil {
			return nil, err
		}
		period = p
	} else if !noCollect && !dryRun {
		if err := collectPosts(ctx, db); err != nil {
			return nil, err
		}
	}

	stored, err := db.GetPostsBetween(period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("loading posts: %w", err)
	}
	fmt.Printf("\nAnalyzing %d posts from %s.\n", len(stored), period.Display())
	return pipeline.FromPosts(stored), nil
}

// readInputFile accepts a JSON array of posts or an object with a "posts" array.
func readInputFile(path string) ([]pipeline.PostInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	var posts []pipeline.PostInput
	if err := json.Unmarshal(data, &posts); err == nil {
		return posts, nil
	}
	var wrapped struct {
		Posts []pipeline.PostInput `json:"posts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing input %s: %w", path, err)
	}
	return wrapped.Posts, nil
}

func writeResult(result *pipeline.Result) (string, error) {
	path := outPath
	if path == "" {
		dir := filepath.Join(cfg.GetDataDir(), "runs")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating runs directory: %w", err)
		}
		path = filepath.Join(dir, time.Now().Format("20060102-150405")+".json")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing result: %w", err)
	}
	return path, nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local analysis server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		provider := newProvider()
		if provider == nil {
			return fmt.Errorf("no LLM provider available")
		}
		analyzer, err := pipeline.New(cfg, provider, db, logger)
		if err != nil {
			return err
		}
		srv, err := server.New(db, analyzer, logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- history command ---

var historyDays int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show daily complaint sentiment per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		period := database.LastDays(historyDays)
		trend, err := db.GetDailyTrend(period.Start)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		if len(trend) == 0 {
			fmt.Printf("No sentiment history since %s. Run 'complaintradar run' first.\n", period.Start)
			return nil
		}

		fmt.Printf("Sentiment history %s:\n", period.Display())
		day := ""
		for _, t := range trend {
			if t.Date != day {
				day = t.Date
				fmt.Printf("\n%s\n", day)
			}
			fmt.Printf("  %-24s %+.2f  (%d posts)\n", t.Category, t.Mean, t.Count)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyDays, "days", "d", 30, "Number of days to show")
}

func newProvider() llm.Provider {
	return llm.CreateProvider(llm.Options{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		OllamaURL:    cfg.LLM.OllamaURL,
		OpenAIModel:  cfg.LLM.OpenAIModel,
		OpenAIKeyEnv: cfg.LLM.OpenAIKeyEnv,
		GeminiModel:  cfg.LLM.GeminiModel,
		GeminiKeyEnv: cfg.LLM.GeminiKeyEnv,
		Temperature:  cfg.LLM.Temperature,
	}, logger)
}

// offlineProvider stands in for the LLM during dry runs.
type offlineProvider struct{}

func (offlineProvider) Generate(context.Context, []llm.Message, int) (string, error) {
	return "", fmt.Errorf("dry run: LLM calls disabled")
}

func (offlineProvider) IsConfigured() bool { return false }

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openDB() (*database.DB, error) {
	if err := os.MkdirAll(cfg.GetDataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath(), logger)
}
