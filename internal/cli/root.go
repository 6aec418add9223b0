// Package cli holds the lcu-client command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DoyleJ11/lcu-draft-client/internal/config"
	"github.com/DoyleJ11/lcu-draft-client/internal/version"
)

// flagKeys maps command line flags to their configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-filter":    "log.filter",
	"endpoint":      "endpoint",
	"status-addr":   "status.addr",
	"lockfile":      "lcu.lockfile",
	"resolve-names": "monitoring.resolve-names",
	"redis-url":     "champions.redis-url",
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "lcu-client",
		Short:        "Syncs League of Legends champ select drafts to a workspace",
		Version:      version.FullVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v, cfgFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.lcu-client.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "console", "console or json")
	rootCmd.PersistentFlags().String("log-filter", "",
		"zapfilter rules, e.g. '*:monitor,transmit'")

	rootCmd.AddCommand(newRunCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// initConfig reads .env, the config file and binds flags.
func initConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".lcu-client")
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return bindFlags(cmd, v)
}

// bindFlags ties each known flag to its configuration key so a flag that
// was set wins over file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	bind := func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return errors.Join(errs...)
}
