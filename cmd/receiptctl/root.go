package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"receipt-agent/internal/common/config"
	"receipt-agent/internal/common/logger"
)

var (
	cfg        *config.Config
	zapLog     *zap.Logger
	log        logger.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "receiptctl",
	Short: "Operate the expense receipt agent",
	Long:  "Submits receipts, seeds the employee directory, starts receipt processes and calibrates duplicate thresholds.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var (
			c   *config.Config
			err error
		)
		if configPath != "" {
			c, err = config.LoadFromFile(configPath)
		} else {
			c, err = config.Load()
		}
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, "stderr")
		log = logger.NewZapAdapter(zapLog)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zapLog != nil {
			_ = zapLog.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default configs/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
