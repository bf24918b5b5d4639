package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"evalgo.org/dockyard/internal/config"
	"evalgo.org/dockyard/internal/log"
	"evalgo.org/dockyard/internal/version"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dockyard",
	Short: "Manage containers across remote Docker hosts",
	Long: `Dockyard drives a fleet of remote container engines from one place.

It caches each host's container and image listings, mirrors container
metadata and ownership in a local database, and serves an HTTP API for
creating, controlling and inspecting containers on every registered host.`,
	Version:           version.Version,
	PersistentPreRunE: initConfig,
	SilenceUsage:      true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "%s" .Version}}
`)
}

// initConfig loads the configuration, applies the logging flags and sets up
// the process logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	initLogging(cfg.Logging)
	return nil
}

func initLogging(lc config.LoggingConfig) {
	output := os.Stdout
	if lc.Output == "stderr" {
		output = os.Stderr
	}
	log.Init(log.Config{
		Level:      log.Level(strings.ToLower(lc.Level)),
		JSONOutput: lc.Format != "text",
		Output:     output,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Fprintln(cmd.OutOrStdout(), info.String())

		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nDetails:\n")
			fmt.Fprintf(out, "  Version:    %s\n", info.Version)
			fmt.Fprintf(out, "  Git Commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "  Built:      %s\n", info.BuildTime)
			fmt.Fprintf(out, "  Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(out, "  Platform:   %s\n", info.Platform)
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "verbose version output")
}
