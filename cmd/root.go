// Package cmd provides the command-line interface for the CodeChat Server.
//
// Configuration comes from several sources, in decreasing precedence:
//
//	1. Command-line flags (--log-level, --insecure, ...)
//	2. CODECHAT_CONFIG_FILE environment variable naming a config file
//	3. Individual environment variables (CODECHAT_LOG_LEVEL, ...)
//	4. A codechat.yaml file in the current directory
//
// Every config key is reachable through the environment as
// CODECHAT_<KEY>, e.g. CODECHAT_WORKERS=8.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codechat-server",
	Short: "A local rendering service for live editor-to-browser previews",
	Long: `The CodeChat Server renders editor buffers and on-disk documents to HTML
and delivers the result to a live browser view. Editor plug-ins submit text
over a local RPC port; the browser receives build output, diagnostics, and
the rendered page as they are produced.

Supported sources include Markdown, reStructuredText, source code in many
languages, and external project builders such as Sphinx and PreTeXt.

Quick Start:
  codechat-server start           Start the server in the background
  codechat-server serve           Run the server in the foreground
  codechat-server build doc.md    Render files once and print the HTML
  codechat-server stop            Stop all running server instances

The editor RPC listens on 127.0.0.1:9090, the viewer is served on port
9091, and live render events are pushed over a WebSocket on port 9092.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is codechat.yaml, can also use CODECHAT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().Var(
		newChoiceValue("info", "debug", "info", "warn", "error"),
		"log-level", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Var(
		newChoiceValue("text", "text", "json"),
		"log-format", "log format (text, json)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// choiceValue is a pflag.Value restricted to a fixed set of strings, so a
// bad --log-level fails at parse time instead of after config loading.
type choiceValue struct {
	value   string
	choices []string
}

func newChoiceValue(def string, choices ...string) *choiceValue {
	return &choiceValue{value: def, choices: choices}
}

func (c *choiceValue) String() string { return c.value }

func (c *choiceValue) Type() string { return "string" }

func (c *choiceValue) Set(val string) error {
	for _, choice := range c.choices {
		if val == choice {
			c.value = val
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(c.choices, ", "))
}

var _ pflag.Value = (*choiceValue)(nil)

// initConfig locates the config file (--config flag first, then the
// CODECHAT_CONFIG_FILE variable, then codechat.yaml in the working
// directory) and turns on CODECHAT_-prefixed environment binding.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("CODECHAT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("codechat")
	}

	viper.SetEnvPrefix("CODECHAT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file is not an error; the defaults and
	// the environment still apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) *logging.ServerLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
}
