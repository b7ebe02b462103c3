package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lkraemer/gitscout/internal/config"
	"github.com/lkraemer/gitscout/internal/database"
	"github.com/lkraemer/gitscout/internal/digest"
	"github.com/lkraemer/gitscout/internal/embed"
	"github.com/lkraemer/gitscout/internal/feed"
	"github.com/lkraemer/gitscout/internal/fetch"
	"github.com/lkraemer/gitscout/internal/github"
	"github.com/lkraemer/gitscout/internal/llm"
	"github.com/lkraemer/gitscout/internal/relevance"
	"github.com/lkraemer/gitscout/internal/server"
	"github.com/lkraemer/gitscout/internal/summarize"
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
	Use:     "gitscout",
	Short:   "Personalized GitHub research feed",
	Long:    "gitscout watches repositories, scores their activity against your project contexts, and surfaces new repos worth following.",
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
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gitscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/gitscout/",
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
		fmt.Println("Edit it to set your GitHub username and provider API keys.")
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

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Printf("Watched repositories: %d\n", stats.WatchedRepos)
		fmt.Printf("Feed events: %d\n", stats.FeedEvents)
		fmt.Printf("Project contexts: %d\n", stats.ProjectContexts)
		fmt.Printf("Pending candidates: %d\n", stats.PendingCandidates)
		fmt.Printf("Cached embeddings: %d\n", stats.CachedEmbeddings)

		if cfg.GitHubToken() == "" {
			fmt.Println("\nNo GitHub token set; using public Atom feeds (lower detail, stricter limits).")
		}
		return nil
	},
}

// --- watch commands ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the watch list",
}

var watchAddCmd = &cobra.Command{
	Use:   "add [owner/repo]...",
	Short: "Watch one or more repositories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, fullName := range args {
			if !strings.Contains(fullName, "/") {
				return fmt.Errorf("invalid repository name %q, expected owner/repo", fullName)
			}
			added, err := db.UpsertWatchedRepo(fullName, database.OriginManual)
			if err != nil {
				return err
			}
			if added {
				fmt.Printf("Watching %s\n", fullName)
			} else {
				fmt.Printf("Already watching %s\n", fullName)
			}
		}
		return nil
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove [owner/repo]",
	Short: "Stop watching a repository and drop its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		removed, err := db.RemoveWatchedRepo(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("not watching %s", args[0])
		}
		fmt.Printf("Stopped watching %s\n", args[0])
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		repos, err := db.GetWatchedRepos()
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("Watch list is empty. Add repos with: gitscout watch add owner/repo")
			return nil
		}

		for _, r := range repos {
			checked := "never checked"
			if r.LastChecked != nil {
				checked = "checked " + *r.LastChecked
			}
			fmt.Printf("  %-40s %-10s %s\n", r.FullName, r.Origin, checked)
		}
		return nil
	},
}

var (
	watchLanguage string
	watchMinStars int
	watchLimit    int
)

var watchOrgCmd = &cobra.Command{
	Use:   "org [name]",
	Short: "Watch an organization's repositories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		source := newSource()
		filters := github.ListFilters{Language: watchLanguage, MinStars: watchMinStars}
		repos, err := source.ListOrgRepos(context.Background(), args[0], filters, watchLimit)
		if err != nil {
			return fmt.Errorf("listing %s repos: %w", args[0], err)
		}

		added := 0
		for _, r := range repos {
			wasNew, err := db.UpsertWatchedRepo(r.FullName, database.OriginOrg)
			if err != nil {
				return err
			}
			if wasNew {
				added++
			}
		}
		fmt.Printf("Watching %d new repos from %s (%d matched)\n", added, args[0], len(repos))
		return nil
	},
}

var watchSyncStarredCmd = &cobra.Command{
	Use:   "sync-starred",
	Short: "Watch your starred repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.GitHub.Username == "" {
			return fmt.Errorf("set github.username in the config to sync starred repos")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		source := newSource()
		repos, err := source.ListStarred(context.Background(), cfg.GitHub.Username, watchLimit)
		if err != nil {
			return fmt.Errorf("listing starred repos: %w", err)
		}

		added := 0
		for _, r := range repos {
			wasNew, err := db.UpsertWatchedRepo(r.FullName, database.OriginStarred)
			if err != nil {
				return err
			}
			if wasNew {
				added++
			}
		}
		fmt.Printf("Synced %d starred repos, %d new\n", len(repos), added)
		return nil
	},
}

func init() {
	watchOrgCmd.Flags().StringVar(&watchLanguage, "language", "", "Only repos in this language")
	watchOrgCmd.Flags().IntVar(&watchMinStars, "min-stars", 0, "Only repos with at least this many stars")
	watchOrgCmd.Flags().IntVar(&watchLimit, "limit", 50, "Maximum matching repos to add")
	watchSyncStarredCmd.Flags().IntVar(&watchLimit, "limit", 100, "Maximum starred repos to sync")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchOrgCmd)
	watchCmd.AddCommand(watchSyncStarredCmd)
}

// --- context commands ---

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage project contexts used for relevance scoring",
}

var contextAddCmd = &cobra.Command{
	Use:   "add [name] [description]",
	Short: "Register a project context",
	Args:  cobra.ExactArgs(2),
	RunE:  runContextUpsert,
}

var contextUpdateCmd = &cobra.Command{
	Use:   "update [name] [description]",
	Short: "Re-describe a context (recomputes its embedding)",
	Args:  cobra.ExactArgs(2),
	RunE:  runContextUpsert,
}

func runContextUpsert(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	name, description := args[0], args[1]
	cache, err := newEmbedCache(db)
	if err != nil {
		return err
	}

	vector, err := cache.Embed(context.Background(), description)
	if err != nil {
		return fmt.Errorf("embedding context description: %w", err)
	}
	if err := db.UpsertProjectContext(name, description, vector); err != nil {
		return err
	}
	fmt.Printf("Context %q saved (%d-dim embedding)\n", name, len(vector))
	return nil
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List project contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		contexts, err := db.GetProjectContexts()
		if err != nil {
			return err
		}
		if len(contexts) == 0 {
			fmt.Println("No contexts defined. Add one with: gitscout context add name \"description\"")
			return nil
		}

		for _, c := range contexts {
			embedded := "embedded"
			if len(c.Embedding) == 0 {
				embedded = "no embedding, excluded from scoring"
			}
			fmt.Printf("  %s (%s)\n    %s\n", c.Name, embedded, c.Description)
		}
		return nil
	},
}

var contextRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a project context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		removed, err := db.RemoveProjectContext(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no context named %q", args[0])
		}
		fmt.Printf("Removed context %q\n", args[0])
		return nil
	},
}

func init() {
	contextCmd.AddCommand(contextAddCmd)
	contextCmd.AddCommand(contextUpdateCmd)
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextRemoveCmd)
}

// --- poll command ---

var pollCmd = &cobra.Command{
	Use:   "poll [owner/repo]",
	Short: "Poll watched repositories for new activity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		engine, err := newEngine(db)
		if err != nil {
			return err
		}

		var result *feed.SweepResult
		if len(args) == 1 {
			result, err = engine.PollRepo(context.Background(), args[0])
		} else {
			result, err = engine.PollAll(context.Background())
		}
		if err != nil {
			return err
		}

		fmt.Printf("Polled %d repos: %d new events", result.ReposChecked, result.NewEvents)
		if result.NewEvents > 0 {
			fmt.Printf(" (%d releases, %d commit bursts, %d README changes, %d new repos)",
				result.Releases, result.CommitBursts, result.ReadmeChanges, result.NewRepos)
		}
		fmt.Println()

		for _, f := range result.Failures {
			fmt.Printf("  failed: %s: %v\n", f.Repo, f.Err)
		}
		return nil
	},
}

// --- discover command ---

var (
	discoverLimit    int
	discoverLanguage string
	discoverMinStars int
	discoverMinScore float64
)

var discoverCmd = &cobra.Command{
	Use:   "discover [query]",
	Short: "Search for new repositories matching your contexts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if cmd.Flags().Changed("min-stars") {
			cfg.Discovery.MinStars = discoverMinStars
		}
		if cmd.Flags().Changed("min-score") {
			cfg.Discovery.MinScore = discoverMinScore
		}
		query := args[0]
		if discoverLanguage != "" {
			query += " language:" + discoverLanguage
		}

		engine, err := newEngine(db)
		if err != nil {
			return err
		}

		found, err := engine.Discover(context.Background(), query, discoverLimit)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No candidates above the score floor.")
			return nil
		}

		for _, c := range found {
			printCandidate(c)
		}
		fmt.Println("\nWatch one with: gitscout watch add owner/repo")
		fmt.Println("Dismiss with:   gitscout candidates dismiss owner/repo")
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 10, "Maximum candidates to show")
	discoverCmd.Flags().StringVar(&discoverLanguage, "language", "", "Only repos in this language")
	discoverCmd.Flags().IntVar(&discoverMinStars, "min-stars", 0, "Minimum star count")
	discoverCmd.Flags().Float64Var(&discoverMinScore, "min-score", 0, "Minimum similarity score")
}

// --- candidates commands ---

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Review discovery candidates",
}

var (
	candidatesMinScore float64
	candidatesContext  string
)

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending discovery candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		candidates, err := db.GetCandidates(database.CandidateFilter{
			MinScore: candidatesMinScore,
			Context:  candidatesContext,
		})
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Println("No pending candidates. Run: gitscout discover \"your topic\"")
			return nil
		}

		for _, c := range candidates {
			printCandidate(c)
		}
		return nil
	},
}

var candidatesDismissCmd = &cobra.Command{
	Use:   "dismiss [owner/repo]",
	Short: "Dismiss a candidate permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		dismissed, err := db.DismissCandidate(args[0])
		if err != nil {
			return err
		}
		if !dismissed {
			return fmt.Errorf("no candidate named %s", args[0])
		}
		fmt.Printf("Dismissed %s; it will not be suggested again\n", args[0])
		return nil
	},
}

func init() {
	candidatesListCmd.Flags().Float64Var(&candidatesMinScore, "min-score", 0, "Minimum similarity score")
	candidatesListCmd.Flags().StringVar(&candidatesContext, "context", "", "Only candidates matched to this context")

	candidatesCmd.AddCommand(candidatesListCmd)
	candidatesCmd.AddCommand(candidatesDismissCmd)
}

// --- digest command ---

var (
	digestDays     int
	digestMin      float64
	digestContext  string
	digestOverview bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Show the research feed digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		minRelevance := digestMin
		if !cmd.Flags().Changed("min-relevance") {
			minRelevance = cfg.Poll.MinRelevance
		}

		builder := digest.NewBuilder(db, newSummarizer())
		d, err := builder.Build(context.Background(), database.EventFilter{
			DaysBack:     digestDays,
			MinRelevance: minRelevance,
			Context:      digestContext,
		}, digestOverview)
		if err != nil {
			return err
		}

		fmt.Print(d.RenderText())
		return nil
	},
}

func init() {
	digestCmd.Flags().IntVar(&digestDays, "days", 7, "Days of history to include")
	digestCmd.Flags().Float64Var(&digestMin, "min-relevance", 0, "Minimum relevance score")
	digestCmd.Flags().StringVar(&digestContext, "context", "", "Only events matched to this context")
	digestCmd.Flags().BoolVar(&digestOverview, "overview", false, "Generate an LLM overview of the digest")
}

// --- summary command ---

var summaryContext string

var summaryCmd = &cobra.Command{
	Use:   "summary [owner/repo]",
	Short: "Generate a summary of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		summarizer := newSummarizer()
		if summarizer == nil || !summarizer.IsConfigured() {
			return fmt.Errorf("no summary provider configured; check the summary section of the config")
		}

		fullName := args[0]
		source := newSource()
		ctx := context.Background()

		repo, err := source.GetRepo(ctx, fullName)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", fullName, err)
		}

		excerpt := ""
		if readme, err := source.GetReadme(ctx, fullName); err == nil {
			excerpt = readme.Content
		}
		if excerpt == "" && repo.Homepage != "" {
			fetcher := fetch.NewExcerptFetcher(0)
			excerpt = fetcher.HomepageExcerpt(ctx, repo.Homepage)
		}

		summary, err := summarizer.Repo(ctx, fullName, repo.Description, excerpt, summaryContext)
		if err != nil {
			return fmt.Errorf("generating summary: %w", err)
		}

		fmt.Println(summary)

		cache, err := newEmbedCache(db)
		if err != nil {
			return err
		}
		scoringText := strings.Join([]string{fullName, repo.Description, excerpt}, "\n")
		vector, embedErr := cache.Embed(ctx, scoringText)
		if embedErr == nil {
			scorer := relevance.NewScorer(db, cache)
			if match, err := scorer.ScoreAgainstContexts(ctx, scoringText); err == nil && match.Context != "" {
				fmt.Printf("\nRelevance: %.2f (%s)\n", match.Score, match.Context)
			}
		} else {
			log.Printf("Scoring skipped: %v", embedErr)
		}

		// Persist on the watch list entry if there is one.
		if watched, err := db.GetWatchedRepo(fullName); err == nil && watched != nil {
			if summary != "" {
				if err := db.UpdateRepoSummary(fullName, summary); err != nil {
					log.Printf("Storing summary failed: %v", err)
				}
			}
			if embedErr == nil {
				if err := db.UpdateRepoEmbedding(fullName, vector); err != nil {
					log.Printf("Storing embedding failed: %v", err)
				}
			}
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryContext, "context", "", "Frame the summary for this project context")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
			port = cfg.Server.Port
		}

		builder := digest.NewBuilder(db, newSummarizer())
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, builder, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- wiring helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "gitscout.db")
	return database.Open(dbPath)
}

func newSource() *github.Client {
	return github.NewClient(cfg.GitHubToken())
}

func newEmbedCache(db *database.DB) (*embed.Cache, error) {
	provider, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	return embed.NewCache(db, provider), nil
}

// newSummarizer returns nil when no provider can be built; summaries
// are optional everywhere they are used.
func newSummarizer() *summarize.Summarizer {
	provider, err := llm.NewProvider(cfg.Summary)
	if err != nil {
		log.Printf("Summary provider disabled: %v", err)
		return nil
	}
	return summarize.New(provider)
}

func newEngine(db *database.DB) (*feed.Engine, error) {
	cache, err := newEmbedCache(db)
	if err != nil {
		return nil, err
	}
	scorer := relevance.NewScorer(db, cache)
	return feed.NewEngine(db, newSource(), scorer, newSummarizer(), cfg), nil
}

func printCandidate(c database.DiscoveryCandidate) {
	line := fmt.Sprintf("  [%.2f] %s", c.SimilarityScore, c.FullName)
	if c.Language != nil && *c.Language != "" {
		line += " (" + *c.Language + ")"
	}
	line += fmt.Sprintf("  %d stars", c.Stars)
	if c.MatchedContext != nil && *c.MatchedContext != "" {
		line += "  ~ " + *c.MatchedContext
	}
	fmt.Println(line)
	if c.Description != nil && *c.Description != "" {
		desc := *c.Description
		if len(desc) > 100 {
			desc = desc[:100] + "..."
		}
		fmt.Printf("         %s\n", desc)
	}
}
