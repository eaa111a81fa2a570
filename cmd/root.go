// Copyright © 2018 The ELPS authors

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scriptdap",
	Short: "Script interpreter with a Debug Adapter Protocol debugger",
	Long: `scriptdap runs command scripts and can expose the running script to an
IDE over the Debug Adapter Protocol.

Getting started:
  scriptdap run build.script               Run a script
  scriptdap debug build.script             Debug with TCP on port 4711
  scriptdap debug --stdio build.script     Debug over stdin/stdout
  scriptdap debug --pipe /tmp/dap.sock build.script

Configuration is read from $HOME/.scriptdap.yaml (or --config) and from
SCRIPTDAP_* environment variables, e.g. SCRIPTDAP_LOG_LEVEL=debug.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scriptdap.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		`Log level: "trace", "debug", "info", "warn" or "error".`)
	rootCmd.PersistentFlags().String("log-format", "text",
		`Log format: "text" or "json".`)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(RunCommand())
	rootCmd.AddCommand(DebugCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			// Search config in home directory with name ".scriptdap" (without extension).
			viper.AddConfigPath(home)
			viper.SetConfigName(".scriptdap")
		}
	}

	viper.SetEnvPrefix("SCRIPTDAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// setupLogging applies the log settings. Logs go to stderr, which keeps
// stdout free for the DAP stream in --stdio mode.
func setupLogging() error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	switch viper.GetString("log.format") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", viper.GetString("log.format"))
	}
	return nil
}
