package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grigta/simgate/pkg/config"
	"github.com/grigta/simgate/pkg/logger"
)

var (
	configDir string
	cfg       *config.Config
	log       *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "ussd-service",
	Short:         "SIM activation and top-up gateway",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log = logger.NewLogrus(cfg.App.LogLevel, cfg.App.LogFormat)
		logger.SetDefault(logger.FromLogrus(log))

		if !cfg.App.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		return nil
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ussd-service: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "./configs", "directory holding config.yaml")
}
