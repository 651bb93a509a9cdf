package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/autofranco/frankie/internal/app"
	"github.com/autofranco/frankie/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	// A local .env can hold the API keys the config file omits.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "frankie",
	Short: "Frankie - AI outbound follow-up engine",
	Long:  `Frankie generates personalized outreach emails per lead and delivers them as a three-step timed sequence.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign engine",
	Long:  `Start the engine: the HTTP API, the recurring sweep and the trigger scheduler.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("frankie version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Storage:  %s\n", cfg.Storage.Path)
	fmt.Printf("  API:      %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Gateway:  %s\n", cfg.Gateway.Transport)
	fmt.Printf("  LLM:      %s (%s)\n", cfg.LLM.BaseURL, cfg.LLM.Model)
	fmt.Printf("  Sweep:    every %s\n", cfg.Scheduler.SweepInterval)

	return nil
}
