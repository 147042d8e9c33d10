package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/l3ad-solutions/intake/internal/agent"
	"github.com/l3ad-solutions/intake/internal/config"
	"github.com/l3ad-solutions/intake/internal/store"
	"github.com/l3ad-solutions/intake/pkg/anthropic"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Client intake service with AI business analysis",
	Long:  "Manages client projects, runs a multi-stage Claude pipeline over their web presence, and serves the intake form and proposals.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initStore opens the configured database and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// initAnalyzer builds the analysis pipeline from config.
func initAnalyzer() *agent.Analyzer {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	gateway := agent.NewGateway(client,
		cfg.Anthropic.FastModel,
		cfg.Anthropic.BalancedModel,
		cfg.Anthropic.QualityModel,
	)
	return agent.NewAnalyzer(gateway, agent.NewFetcher())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
