// Command growlight keeps a grow light on a daily photoperiod driven by a
// DS3231 real-time clock, and reports the environment around it.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sweeney/growlight/internal/config"
	"github.com/sweeney/growlight/internal/console"
	"github.com/sweeney/growlight/internal/logging"
	"github.com/sweeney/growlight/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "growlight",
	Short:         "Grow light photoperiod controller",
	Long:          "growlight drives a grow light relay from the alarms of a DS3231 real-time clock and publishes light events and sensor readings over MQTT.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemonCmd,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller (default)",
	RunE:  runDaemonCmd,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file (env GROWLIGHT_CONFIG)")
	rootCmd.AddCommand(runCmd, clockCmd, setClockCmd, hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and sets up logging. The returned console
// is nil when disabled.
func loadConfig() (config.Config, zerolog.Logger, *console.Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}

	var con *console.Server
	if cfg.Console.Addr != "" {
		con = console.New(cfg.Console.History, nil)
	}
	var logger zerolog.Logger
	if con != nil {
		logger = logging.SetupWithWriter(cfg.Environment, con)
		con.SetLogger(logger)
	} else {
		logger = logging.Setup(cfg.Environment)
	}
	return cfg, logger, con, nil
}

func runDaemonCmd(cmd *cobra.Command, args []string) error {
	cfg, logger, con, err := loadConfig()
	if err != nil {
		return err
	}
	if err := runDaemon(cfg, logger, con); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
	return nil
}
