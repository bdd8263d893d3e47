package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bizledger/internal/observability/logger"
	"bizledger/internal/receivables/application"
	receivables "bizledger/internal/receivables/domain"
	"bizledger/internal/receivables/infrastructure/postgres"
)

const timeLayout = time.RFC3339

type config struct {
	dbURL       string
	companyID   string
	outDir      string
	timeout     time.Duration
	concurrency int
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	zlog, err := logger.New(getenvDefault("LOG_LEVEL", "info"), getenvDefault("LOG_FORMAT", "console"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = zlog.Sync() }()

	engineCfg, err := application.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "receivables config:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	sink, err := application.NewStatusSink(engineCfg.Sweep.NodeID, nil, nil, zlog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status sink:", err)
		os.Exit(2)
	}
	sweeper, err := application.NewSweeper(
		postgres.NewStore(db),
		application.NewSettingsResolver(engineCfg.DomainDefaults()),
		sink,
		application.WithSweepLogger(zlog),
		application.WithSweepClock(receivables.SystemClock{}),
		application.WithSweepConcurrency(cfg.concurrency),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sweeper:", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	startedAt := time.Now().UTC()
	var result application.SweepResult
	if cfg.companyID == "" {
		result, err = sweeper.SweepAll(ctx)
	} else {
		result, err = sweeper.Sweep(ctx, cfg.companyID)
	}
	if err != nil && !result.Cancelled {
		fmt.Fprintln(os.Stderr, "sweep:", err)
		os.Exit(1)
	}

	stamp := startedAt.Format("20060102T150405Z")
	if err := writeTransitions(filepath.Join(cfg.outDir, "sweep_transitions_"+stamp+".csv"), result.Transitions); err != nil {
		fmt.Fprintln(os.Stderr, "write transitions:", err)
		os.Exit(1)
	}
	if err := writeFailures(filepath.Join(cfg.outDir, "sweep_failures_"+stamp+".csv"), result.Failures); err != nil {
		fmt.Fprintln(os.Stderr, "write failures:", err)
		os.Exit(1)
	}
	if err := writeSummary(filepath.Join(cfg.outDir, "sweep_summary_"+stamp+".json"), startedAt, result); err != nil {
		fmt.Fprintln(os.Stderr, "write summary:", err)
		os.Exit(1)
	}

	fmt.Printf("companies=%d processed=%d updated=%d failed=%d cancelled=%t\n",
		result.Companies, result.TotalProcessed, result.UpdatedCount, result.FailedCount, result.Cancelled)
	if result.Cancelled {
		os.Exit(1)
	}
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.companyID, "company", "", "company id (empty sweeps every configured company)")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Minute, "overall sweep timeout")
	flag.IntVar(&cfg.concurrency, "concurrency", getenvIntDefault("RECEIVABLES_SWEEP_CONCURRENCY", 4), "companies swept in parallel")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("--timeout must be positive")
	}
	return cfg, nil
}

func writeTransitions(path string, rows []application.SweepTransition) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"company_id",
		"customer_id",
		"entry_id",
		"from_status",
		"to_status",
		"days_overdue",
		"accrued_interest",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.CompanyID,
			row.CustomerID,
			row.EntryID,
			string(row.From),
			string(row.To),
			strconv.Itoa(row.DaysOverdue),
			row.AccruedInterest.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeFailures(path string, rows []application.SweepFailure) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"company_id", "entry_id", "error"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.CompanyID, row.EntryID, row.Error}); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeSummary(path string, startedAt time.Time, result application.SweepResult) error {
	summary := struct {
		StartedAt      string `json:"started_at"`
		FinishedAt     string `json:"finished_at"`
		Companies      int    `json:"companies"`
		TotalProcessed int    `json:"total_processed"`
		UpdatedCount   int    `json:"updated_count"`
		FailedCount    int    `json:"failed_count"`
		Cancelled      bool   `json:"cancelled"`
	}{
		StartedAt:      startedAt.Format(timeLayout),
		FinishedAt:     time.Now().UTC().Format(timeLayout),
		Companies:      result.Companies,
		TotalProcessed: result.TotalProcessed,
		UpdatedCount:   result.UpdatedCount,
		FailedCount:    result.FailedCount,
		Cancelled:      result.Cancelled,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
