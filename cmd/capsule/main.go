// Command capsule compiles and runs pipelines with the local engine and
// serves the status of recorded executions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configFile string
	envFile    string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:           "capsule",
		Short:         "Neuroimaging pipeline compiler and local runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "configuration file (default: ./capsule.yaml or the user config dir)")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", ".env file loaded before CAPSULE_* variables are read")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRunCommand(&g))
	cmd.AddCommand(newCompileCommand(&g))
	cmd.AddCommand(newServeCommand(&g))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// load reads the configuration and installs the global logger.
func (g *globalFlags) load(extra ...config.LoaderOption) (*config.Config, *logger.Logger, error) {
	opts := extra
	if g.configFile != "" {
		opts = append(opts, config.WithConfigFile(g.configFile))
	}
	if g.envFile != "" {
		opts = append(opts, config.WithEnvFile(g.envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, nil, err
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	}
	log := logger.New(&cfg.Logging, cfg.Name)
	logger.SetGlobalLogger(log)
	logger.Configure(log)
	return cfg, log, nil
}
