// Command runner drives form submissions for one targeting: it claims
// companies from the send queue, fills and submits their contact forms and
// reports outcomes back to the store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"formrunner/internal/browser"
	"formrunner/internal/config"
	"formrunner/internal/logging"
	"formrunner/internal/prohibition"
	"formrunner/internal/queue"
	"formrunner/internal/runner"
	"formrunner/internal/worker"
)

var (
	// Global flags
	verbose      bool
	targetingID  int64
	configFile   string
	workerConfig string

	// Run flags
	numWorkers   int
	headless     string
	targetDate   string
	shardID      int
	maxProcessed int
	companyID    int64
	queueKind    string
	dbPath       string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "runner",
	Short: "Contact form submission runner",
	Long: `runner claims companies from the send queue for a targeting, opens each
company's contact form in a headless browser, maps and fills the fields with
the client's data, submits, and judges the outcome before reporting it back.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runFleet,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the local queue database with a company",
	Long: `Inserts a company and a pending send-queue entry into the local sqlite
queue so a dev run has work to claim.

Example:
  runner seed --db queue.db --targeting-id 7 --company-id 101 \
    --name "株式会社例" --form-url https://example.co.jp/contact`,
	RunE: seedLocal,
}

var (
	seedName    string
	seedFormURL string
	seedShardID int
	seedFile    string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.Int64Var(&targetingID, "targeting-id", 0, "Targeting id (required)")
	pf.StringVar(&configFile, "config-file", "", "Tenant config path or glob (default: config/client_config_<targeting-id>*.json)")
	pf.StringVar(&workerConfig, "worker-config", "", "Worker config YAML (default: built-in defaults)")
	pf.StringVar(&targetDate, "target-date", "", "Queue date, YYYY-MM-DD (default: today in JST)")
	pf.StringVar(&queueKind, "queue", "remote", "Queue backend: remote or local")
	pf.StringVar(&dbPath, "db", "queue.db", "Local queue database path (queue=local)")

	f := rootCmd.Flags()
	f.IntVar(&numWorkers, "num-workers", 0, "Worker count, 1-4 (default: worker config)")
	f.StringVar(&headless, "headless", "", "Headless override: auto, true, false")
	f.IntVar(&shardID, "shard-id", -1, "Pin claims to a queue shard (-1 unsharded)")
	f.IntVar(&maxProcessed, "max-processed", 0, "Stop after this many companies (0 unlimited)")
	f.Int64Var(&companyID, "company-id", 0, "Process a single company and exit")

	seedCmd.Flags().Int64Var(&companyID, "company-id", 0, "Company id (required without --file)")
	seedCmd.Flags().StringVar(&seedName, "name", "", "Company name (required without --file)")
	seedCmd.Flags().StringVar(&seedFormURL, "form-url", "", "Contact form URL")
	seedCmd.Flags().IntVar(&seedShardID, "shard-id", -1, "Queue shard (-1 unsharded)")
	seedCmd.Flags().StringVar(&seedFile, "file", "", "JSON array of companies to seed in bulk")

	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var jst = time.FixedZone("JST", 9*60*60)

func runFleet(cmd *cobra.Command, args []string) error {
	if targetingID <= 0 {
		return fmt.Errorf("--targeting-id is required")
	}
	if targetDate == "" {
		targetDate = time.Now().In(jst).Format("2006-01-02")
	}

	cfg, err := config.LoadWorkerConfig(workerConfig)
	if err != nil {
		return err
	}
	env := config.ReadEnv()
	if headless != "" {
		cfg.Browser.Headless = headless
	} else if env.Headless != "" {
		cfg.Browser.Headless = env.Headless
	}

	tenant, err := loadTenant()
	if err != nil {
		return err
	}
	if tenant.TargetingID != targetingID {
		return fmt.Errorf("tenant config is for targeting %d, not %d", tenant.TargetingID, targetingID)
	}
	if !tenant.Active {
		return fmt.Errorf("targeting %d is inactive", targetingID)
	}

	q, err := openQueue(env)
	if err != nil {
		return err
	}
	defer q.Close()

	workers := numWorkers
	if workers <= 0 {
		workers = cfg.NumWorkers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > 4 {
		workers = 4
	}
	if companyID > 0 {
		workers = 1
	}

	ctx := context.Background()
	prohibitor := prohibition.NewDetector(cfg.Prohibition, logger)
	fleet := make([]*worker.Worker, workers)
	managers := make([]*browser.Manager, workers)
	for i := range fleet {
		mgr := browser.NewManager(cfg.Browser, logger)
		if err := mgr.Start(ctx); err != nil {
			for _, m := range managers[:i] {
				m.Shutdown()
			}
			return fmt.Errorf("start browser %d: %w", i, err)
		}
		managers[i] = mgr
		fleet[i] = worker.New(i, cfg, env, tenant, q, mgr, prohibitor, logger)
	}
	defer func() {
		for _, m := range managers {
			m.Shutdown()
		}
	}()

	opts := runner.Options{
		TargetDate:   targetDate,
		ShardID:      shardID,
		MaxProcessed: maxProcessed,
		CompanyID:    companyID,
		NumWorkers:   workers,
	}
	logger.Info("run starting",
		zap.Int64("targeting_id", targetingID),
		zap.String("target_date", targetDate),
		zap.Int("num_workers", workers),
		zap.String("run_id", env.RunID))

	r := runner.NewFromWorkers(cfg, tenant, q, opts, fleet, logger)
	return r.Run(ctx)
}

func loadTenant() (*config.Tenant, error) {
	pattern := configFile
	if pattern == "" {
		pattern = fmt.Sprintf("config/client_config_%d*.json", targetingID)
	}
	return config.LoadTenant(pattern)
}

func openQueue(env config.Env) (queue.Queue, error) {
	switch queueKind {
	case "local":
		return queue.NewLocal(dbPath, logger)
	case "remote":
		return queue.NewRemote(env, logger)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", queueKind)
	}
}

func seedLocal(cmd *cobra.Command, args []string) error {
	if targetingID <= 0 {
		return fmt.Errorf("--targeting-id is required")
	}
	if targetDate == "" {
		targetDate = time.Now().In(jst).Format("2006-01-02")
	}

	var companies []queue.Company
	if seedFile != "" {
		data, err := os.ReadFile(seedFile)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		if err := json.Unmarshal(data, &companies); err != nil {
			return fmt.Errorf("parse seed file: %w", err)
		}
	} else {
		if companyID <= 0 || seedName == "" {
			return fmt.Errorf("--company-id and --name are required without --file")
		}
		companies = []queue.Company{{ID: companyID, Name: seedName, FormURL: seedFormURL}}
	}

	l, err := queue.NewLocal(dbPath, logger)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := context.Background()
	for _, c := range companies {
		if err := l.Seed(ctx, targetDate, targetingID, c, seedShardID); err != nil {
			return fmt.Errorf("seed company %d: %w", c.ID, err)
		}
	}
	logger.Info("seeded companies",
		zap.Int("count", len(companies)),
		zap.String("target_date", targetDate))
	return nil
}
