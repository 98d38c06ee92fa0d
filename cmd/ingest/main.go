package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"BarLake/internal/di"
	"BarLake/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errIncomplete = errors.New("some files were rejected or failed")

var (
	configPath string
	ingestDir  string
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a directory of bar files into the store",
	Long: `Walks a directory of .csv and .parquet files, drops rows older than the
configured recency window and ingests each file as one batch.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "Config file path")
	rootCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "Directory to ingest (defaults to ingest.dir)")

	viper.SetEnvPrefix("barlake")
	viper.AutomaticEnv()
	viper.BindPFlag("config", rootCmd.Flags().Lookup("config"))
	viper.BindPFlag("dir", rootCmd.Flags().Lookup("dir"))
}

type summaryOutput struct {
	Dir      string `json:"dir"`
	Files    int    `json:"files"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Failed   int    `json:"failed"`
	Stale    int    `json:"stale"`
	Inserted int64  `json:"inserted"`
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnv(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if dir := viper.GetString("dir"); dir != "" {
		cfg.Ingest.Dir = dir
	}

	runner, err := di.InitializeIngest(cfg)
	if err != nil {
		return fmt.Errorf("ingest initialization failed: %w", err)
	}
	defer runner.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Files.IngestDir(ctx, cfg.Ingest.Dir)
	if summary != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(summaryOutput{
			Dir:      cfg.Ingest.Dir,
			Files:    summary.Files,
			Accepted: summary.Accepted,
			Rejected: summary.Rejected,
			Failed:   summary.Failed,
			Stale:    summary.Stale,
			Inserted: summary.Inserted,
		})
	}
	if err != nil {
		return fmt.Errorf("ingest error: %w", err)
	}
	if summary.Failed > 0 || summary.Rejected > 0 {
		return errIncomplete
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errIncomplete) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
