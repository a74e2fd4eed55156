package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xraph/keel/scenarios"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     scenarios.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "keel",
		Short:        "Run the keel dependency-injection scenarios",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "scenario config file (YAML)")
	root.PersistentFlags().Bool("obey-speed-limit", true, "register the sane driver in the configuration scenario")
	root.PersistentFlags().String("log-level", "info", "container log level (debug, info, warn, error)")
	root.PersistentFlags().StringP("output", "o", "stdout", `where scenario output goes: "stdout" or a file path`)

	// Bind flags to viper
	_ = a.v.BindPFlag("obey_speed_limit", root.PersistentFlags().Lookup("obey-speed-limit"))
	_ = a.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("output", root.PersistentFlags().Lookup("output"))

	root.AddCommand(newListCmd(), newRunCmd(a))

	return root
}

// loadConfig layers defaults, the optional config file, KEEL_* environment
// variables and flags.
func (a *app) loadConfig() error {
	defaults := scenarios.DefaultConfig()
	a.v.SetDefault("obey_speed_limit", defaults.ObeySpeedLimit)
	a.v.SetDefault("log_level", defaults.LogLevel)
	a.v.SetDefault("output", defaults.Output)

	a.v.SetEnvPrefix("KEEL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		f, err := os.Open(a.cfgFile)
		if err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
		defer f.Close()

		fileCfg, err := scenarios.LoadConfig(f)
		if err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
		if err := a.v.MergeConfigMap(fileCfg.Settings()); err != nil {
			return fmt.Errorf("reading config %s: %w", a.cfgFile, err)
		}
	}

	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// newLogger builds the container logger for level. Debug uses the
// development encoder.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// openOutput returns the writer scenario output goes to and a function
// closing it.
func openOutput(cmd *cobra.Command, output string) (io.Writer, func() error, error) {
	if output == "" || output == "stdout" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, nil, fmt.Errorf("opening output: %w", err)
	}
	return f, sync.OnceValue(f.Close), nil
}
