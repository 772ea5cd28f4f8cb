package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagConfig RunConfig // CLI flags for the run, layered over --config
	configPath string    // YAML run config file
	exitCode   int       // process exit status decided by the run outcome

	// version is overridden at build time with -ldflags "-X github.com/difftest/simv/cmd.version=..."
	version = "dev"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "simv",
	Short: "Co-simulation supervisor for hardware differential testing",
}

// runCmd drives one co-simulation run using parameters from the config file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest hardware state and supervise the run until it terminates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveRunConfig(configPath, cmd.Flags())
		if err != nil {
			return err
		}

		// Set up logging
		level, _ := logrus.ParseLevel(cfg.LogLevel)
		logrus.SetLevel(level)

		handleInterrupt()
		if cfg.StatsView != "" {
			stop := launchStatsview(cfg.StatsView)
			defer stop()
		}

		logrus.Infof("Starting run: image=%s cores=%d pool-depth=%d max-instrs=%s",
			cfg.Image, cfg.NumCores, cfg.PoolDepth, cfg.MaxInstrs.String())
		startTime := time.Now()

		res, err := runSupervisor(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		res.Metrics.Print()
		if cfg.Report != "" {
			if err := writeReport(cfg.Report, buildReport(res)); err != nil {
				return err
			}
			logrus.Infof("Run report written to %s", cfg.Report)
		}

		exitCode = res.Outcome.ExitCode()
		logrus.Infof("Run finished: %s (%s) after %d steps in %v, exit code %d",
			res.Outcome.Status, res.Outcome.Cause, res.Outcome.Steps, time.Since(startTime), exitCode)
		return nil
	},
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the simv version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "simv %s\n", version)
	},
}

// handleInterrupt exits with status 1 on an operator interrupt.
func handleInterrupt() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logrus.Warnf("received %v, exiting", sig)
		os.Exit(1)
	}()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// init sets up CLI flags and subcommands
func init() {
	bindFlags(runCmd.Flags(), &flagConfig)
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run config; explicitly set flags override it")

	// Attach `run` and `version` as subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
