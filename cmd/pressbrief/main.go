package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/larsvang/pressbrief/internal/config"
	"github.com/larsvang/pressbrief/internal/feed"
	"github.com/larsvang/pressbrief/internal/fetch"
	"github.com/larsvang/pressbrief/internal/ledger"
	"github.com/larsvang/pressbrief/internal/llm"
	"github.com/larsvang/pressbrief/internal/mail"
	"github.com/larsvang/pressbrief/internal/run"
	"github.com/larsvang/pressbrief/internal/server"
	"github.com/larsvang/pressbrief/internal/sheet"
	"github.com/larsvang/pressbrief/internal/summarize"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "pressbrief",
	Short:   "Keyword-filtered news digests by email",
	Long:    "Pressbrief reads subscriber rows from a shared spreadsheet, filters their feeds by keyword, summarizes what's new, and mails each subscriber an HTML digest.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

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
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pressbrief", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/pressbrief/",
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
		fmt.Println("Edit it to set the spreadsheet ID, mail account, and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := openLedger()
		if err != nil {
			return err
		}
		defer led.Close()

		count, err := led.Count()
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		auto, err := led.AutoMode()
		if err != nil {
			return fmt.Errorf("reading auto mode: %w", err)
		}

		fmt.Printf("Ledger: %s\n", led.Path())
		fmt.Printf("  Sent links recorded: %d\n", count)
		autoState := "off"
		if auto {
			autoState = "on"
		}
		fmt.Printf("  Auto mode: %s\n", autoState)
		fmt.Printf("\nSpreadsheet: %s\n", cfg.Store.SpreadsheetID)
		fmt.Printf("  Users table: %s, settings table: %s\n", cfg.Store.UsersTable, cfg.Store.SettingsTable)
		return nil
	},
}

// --- run command ---

var (
	runSchedule string
	runEmail    string
	dryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the digest pipeline for a schedule or a single user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runSchedule == "" && runEmail == "" {
			return fmt.Errorf("pass --schedule morning|evening or --user email")
		}

		led, err := openLedger()
		if err != nil {
			return err
		}
		defer led.Close()

		ctx := context.Background()
		store, err := sheet.New(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("opening spreadsheet store: %w", err)
		}

		ctl := newController(store, led)

		if runEmail != "" {
			var result *run.Result
			if dryRun {
				result, err = ctl.DryRun(ctx, runEmail)
			} else {
				result, err = ctl.ForUser(ctx, runEmail)
			}
			if err != nil {
				return err
			}
			printResult(result)
			return result.Err()
		}

		tag := sheet.ParseSchedule(runSchedule)
		if tag != sheet.ScheduleMorning && tag != sheet.ScheduleEvening {
			return fmt.Errorf("invalid schedule %q: use morning or evening", runSchedule)
		}

		var batch *run.BatchResult
		if dryRun {
			batch, err = ctl.DryRunSchedule(ctx, tag)
		} else {
			batch, err = ctl.ForSchedule(ctx, tag)
		}
		if err != nil {
			return err
		}

		fmt.Printf("\n%s run: %d users, %d failed\n", batch.Tag, len(batch.Results), batch.Failed)
		for _, r := range batch.Results {
			printResult(r)
		}
		if batch.Failed > 0 {
			return fmt.Errorf("%d user run(s) failed", batch.Failed)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runSchedule, "schedule", "", "Run for all active users on this schedule (morning or evening)")
	runCmd.Flags().StringVar(&runEmail, "user", "", "Run for a single user by email")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and dedup only; no summaries, mail, or ledger writes")
}

func printResult(r *run.Result) {
	fmt.Printf("\n%s\n", r.Email)
	for _, step := range r.Steps {
		if step.Err != nil {
			fmt.Printf("  %s: error: %v\n", step.Name, step.Err)
		} else {
			fmt.Printf("  %s: %s\n", step.Name, step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := openLedger()
		if err != nil {
			return err
		}
		defer led.Close()

		ctx := context.Background()
		store, err := sheet.New(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("opening spreadsheet store: %w", err)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting dashboard at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(store, newController(store, led), led, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// newController assembles the pipeline from config.
func newController(store *sheet.Store, led *ledger.Ledger) *run.Controller {
	provider := llm.NewProvider(cfg.Summarization)

	var extractor *fetch.Extractor
	if cfg.Summarization.FetchContent {
		extractor = fetch.NewExtractor(30 * time.Second)
	}
	summarizer := summarize.New(provider, extractor, cfg.Summarization.MaxTokens)

	renderer, err := mail.NewRenderer()
	if err != nil {
		log.Fatalf("Parsing mail templates: %v", err)
	}

	return run.New(store, feed.NewFetcher(), led, summarizer, renderer, mail.NewSMTPSender(cfg.Mail), cfg.Digest.MaxArticles)
}

func openLedger() (*ledger.Ledger, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	led, err := ledger.Open(filepath.Join(dataDir, "pressbrief.db"))
	if err != nil {
		return nil, err
	}

	if cfg.Digest.LegacyLedger != "" {
		n, err := led.ImportLegacy(cfg.Digest.LegacyLedger)
		if err != nil {
			log.Printf("Legacy ledger import failed: %v", err)
		} else if n > 0 {
			log.Printf("Imported %d links from %s", n, cfg.Digest.LegacyLedger)
		}
	}
	return led, nil
}
