package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tech1ee/finuts/internal/ai"
	"github.com/tech1ee/finuts/internal/anonymize"
	"github.com/tech1ee/finuts/internal/categorize"
	"github.com/tech1ee/finuts/internal/importer"
	"github.com/tech1ee/finuts/internal/locale"
	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/parser"
	"github.com/tech1ee/finuts/internal/registry"
	"github.com/tech1ee/finuts/internal/service"
	"github.com/tech1ee/finuts/internal/storage"
)

func storageWindow(start, end time.Time) service.DateWindow {
	return service.DateWindow{Start: start, End: end}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a bank statement",
		Long: `Import transactions from a bank statement file.

The document type (CSV, OFX/QFX, CAMT.053) is detected automatically.

Examples:
  # Import a CSV export
  finuts import ~/Downloads/statement.csv

  # Preview without saving
  finuts import --dry-run ~/Downloads/statement.qfx

  # Force day-first dates and Russian number formatting
  finuts import --date-format eu --number-locale ru ~/Downloads/выписка.csv`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().BoolP("yes", "y", false, "Skip the review prompt and save everything non-duplicate")
	cmd.Flags().String("date-format", "auto", "date format (auto, iso, eu, us)")
	cmd.Flags().String("number-locale", "auto", "number locale (auto, us, eu, ru, in)")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	autoYes, _ := cmd.Flags().GetBool("yes")

	opts, err := parseOptions(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dbPath, err := defaultDBPath()
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}

	cascade, orchestrator, err := buildCascade(cmd.Context(), store)
	if err != nil {
		return err
	}
	if orchestrator != nil {
		defer orchestrator.Close()
	}

	var bar *progressbar.ProgressBar
	pipeline, err := importer.New(importer.Config{
		Store:   store,
		Cascade: cascade,
		Options: opts,
		OnProgress: func(p importer.Progress) {
			bar = updateBar(bar, p)
		},
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if err := pipeline.Run(cmd.Context(), data, path); err != nil {
		return err
	}

	review := pipeline.Review()
	printReview(review)

	if dryRun {
		fmt.Printf("\nDry run: nothing saved (%d transactions parsed in %s).\n",
			len(review), time.Since(start).Round(time.Millisecond))
		pipeline.Cancel()
		return nil
	}

	if !autoYes {
		if err := reviewLoop(cmd.Context(), pipeline); err != nil {
			return err
		}
		if pipeline.Progress().State == importer.StateCancelled {
			fmt.Println("Import cancelled.")
			return nil
		}
	}

	if err := pipeline.Confirm(cmd.Context()); err != nil {
		return err
	}

	saved := 0
	for _, r := range pipeline.Review() {
		if r.Selected {
			saved++
		}
	}
	fmt.Printf("\nImported %d of %d transactions in %s.\n",
		saved, len(review), time.Since(start).Round(time.Millisecond))
	if orchestrator != nil {
		fmt.Printf("AI spend today: $%.4f\n", orchestrator.SpentToday())
	}
	return nil
}

func parseOptions(cmd *cobra.Command) (parser.Options, error) {
	var opts parser.Options

	switch df, _ := cmd.Flags().GetString("date-format"); df {
	case "auto":
		opts.DateFormat = locale.DateAuto
	case "iso":
		opts.DateFormat = locale.DateISO
	case "eu":
		opts.DateFormat = locale.DateEU
	case "us":
		opts.DateFormat = locale.DateUS
	default:
		return opts, fmt.Errorf("invalid date format: %s", df)
	}

	switch nl, _ := cmd.Flags().GetString("number-locale"); nl {
	case "auto":
		opts.NumberLocale = locale.NumberAuto
	case "us":
		opts.NumberLocale = locale.NumberUS
	case "eu":
		opts.NumberLocale = locale.NumberEU
	case "ru":
		opts.NumberLocale = locale.NumberRU
	case "in":
		opts.NumberLocale = locale.NumberIN
	default:
		return opts, fmt.Errorf("invalid number locale: %s", nl)
	}

	return opts, nil
}

// buildCascade assembles the categorization tiers from stored state and
// configuration. Remote tiers are only wired when an API key is present.
func buildCascade(ctx context.Context, store *storage.SQLiteStorage) (*categorize.Cascade, *ai.Orchestrator, error) {
	patterns, err := registry.New(registry.DefaultGroups())
	if err != nil {
		return nil, nil, err
	}

	learned, err := store.GetLearnedMerchants(ctx)
	if err != nil {
		return nil, nil, err
	}
	categories, err := store.ListCategories(ctx)
	if err != nil {
		return nil, nil, err
	}

	local := trainLocalClassifier(ctx, store, categories)
	orchestrator, err := buildOrchestrator(patterns)
	if err != nil {
		return nil, nil, err
	}

	var remote categorize.Executor
	if orchestrator != nil {
		remote = orchestrator
	}
	cascade := categorize.NewCascade(categorize.CascadeConfig{
		Registry:   patterns,
		Local:      local,
		Remote:     remote,
		Store:      store,
		Learned:    learned,
		Categories: categories,
	})
	return cascade, orchestrator, nil
}

// trainLocalClassifier fits the on-device model on the last year of
// confirmed history. A thin history just leaves the tier unready.
func trainLocalClassifier(ctx context.Context, store *storage.SQLiteStorage, categories []model.Category) *categorize.LocalClassifier {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	local := categorize.NewLocalClassifier(names)

	now := time.Now()
	history, err := store.QueryExistingTransactions(ctx, storageWindow(now.AddDate(-1, 0, 0), now))
	if err != nil {
		slog.Warn("failed to load training history", "error", err)
		return local
	}

	samples := make([]categorize.Sample, 0, len(history))
	for _, txn := range history {
		if txn.SuggestedCategory == "" {
			continue
		}
		samples = append(samples, categorize.Sample{
			Description: txn.Description,
			Category:    txn.SuggestedCategory,
		})
	}
	local.Train(samples)
	return local
}

func buildOrchestrator(patterns *registry.Registry) (*ai.Orchestrator, error) {
	anthropicKey := viper.GetString("ai.anthropic_api_key")
	openaiKey := viper.GetString("ai.openai_api_key")
	if anthropicKey == "" && openaiKey == "" {
		return nil, nil
	}

	limits := ai.CostLimits{
		DailyUSD:   viper.GetFloat64("ai.daily_budget_usd"),
		MonthlyUSD: viper.GetFloat64("ai.monthly_budget_usd"),
	}
	if limits.DailyUSD == 0 {
		limits.DailyUSD = 1.00
	}
	if limits.MonthlyUSD == 0 {
		limits.MonthlyUSD = 10.00
	}

	var fast, best ai.Provider
	if openaiKey != "" {
		provider, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey: openaiKey,
			Model:  viper.GetString("ai.openai_model"),
		})
		if err != nil {
			return nil, err
		}
		fast = provider
	}
	if anthropicKey != "" {
		provider, err := ai.NewAnthropicProvider(ai.AnthropicConfig{
			APIKey: anthropicKey,
			Model:  viper.GetString("ai.anthropic_model"),
		})
		if err != nil {
			return nil, err
		}
		best = provider
		if fast == nil {
			fast = provider
		}
	}

	return ai.NewOrchestrator(ai.OrchestratorConfig{
		FastProvider: fast,
		BestProvider: best,
		Tracker:      ai.NewCostTracker(limits),
		Anonymizer:   anonymize.New(patterns.BrandNames()...),
	})
}

func updateBar(bar *progressbar.ProgressBar, p importer.Progress) *progressbar.ProgressBar {
	switch p.State {
	case importer.StateCategorizing:
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Categorizing transactions..."),
			)
		}
		_ = bar.Set(p.Processed)
	case importer.StateAwaitingConfirmation, importer.StateCompleted, importer.StateFailed, importer.StateCancelled:
		if bar != nil {
			_ = bar.Finish()
		}
	}
	return bar
}

func printReview(review []model.ReviewableTransaction) {
	fmt.Printf("\n%-4s %-12s %14s  %-10s %-24s %s\n", "#", "DATE", "AMOUNT", "DUP", "CATEGORY", "DESCRIPTION")
	for _, r := range review {
		dup := "-"
		if r.Duplicate.IsDuplicate() {
			dup = r.Duplicate.Kind.String()
		}
		mark := " "
		if !r.Selected {
			mark = "x"
		}
		desc := r.Transaction.Description
		if len(desc) > 40 {
			desc = desc[:40]
		}
		fmt.Printf("%s%-3d %-12s %14s  %-10s %-24s %s\n",
			mark, r.Index,
			r.Transaction.Date.Format("2006-01-02"),
			locale.FormatAmount(r.Transaction.Amount),
			dup,
			r.EffectiveCategory(),
			desc)
	}
}

// reviewLoop is a minimal line-based review prompt: toggle selections,
// override categories, then confirm or cancel.
func reviewLoop(ctx context.Context, pipeline *importer.Pipeline) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n[s]ave, [c]ancel, toggle <n>, cat <n> <category>: ")
		if !scanner.Scan() {
			pipeline.Cancel()
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "s", "save":
			return nil
		case "c", "cancel":
			pipeline.Cancel()
			return nil
		case "toggle":
			if len(fields) != 2 {
				fmt.Println("usage: toggle <n>")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("not a number:", fields[1])
				continue
			}
			selected := false
			for _, r := range pipeline.Review() {
				if r.Index == idx {
					selected = r.Selected
				}
			}
			if err := pipeline.SetSelected(idx, !selected); err != nil {
				fmt.Println(err)
				continue
			}
			printReview(pipeline.Review())
		case "cat":
			if len(fields) != 3 {
				fmt.Println("usage: cat <n> <category>")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("not a number:", fields[1])
				continue
			}
			if err := pipeline.OverrideCategory(ctx, idx, fields[2]); err != nil {
				fmt.Println(err)
				continue
			}
			printReview(pipeline.Review())
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
