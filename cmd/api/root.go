package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags onto the environment keys config reads.
var flagKeys = map[string]string{
	"env":       "APP_ENV",
	"host":      "APP_HOST",
	"port":      "APP_PORT",
	"log-level": "LOG_LEVEL",
	"store":     "CHAT_STORE_DRIVER",
	"sqlite":    "SQLITE_PATH",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	serve := newServeCmd(v)

	root := &cobra.Command{
		Use:   "factory-support",
		Short: "Issue chat service for the factory IT helpdesk",
		Long: `factory-support serves the per-issue chat of the IT helpdesk: message
history over HTTP and live delivery over websockets.

Running it without a subcommand starts the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(v, cmd.Flags())
		},
		RunE: serve.RunE,
	}

	flags := root.PersistentFlags()
	flags.String("env", "", "runtime environment (development, production)")
	flags.String("host", "", "HTTP bind host")
	flags.StringP("port", "p", "", "HTTP bind port")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("store", "", "chat store driver (postgres, sqlite, dynamodb)")
	flags.String("sqlite", "", "database file for the sqlite store driver")

	root.AddCommand(serve)
	root.AddCommand(newMigrateCmd(v))
	root.AddCommand(newTokenCmd(v))
	root.AddCommand(newSeedCmd(v))
	return root
}

// bindFlags lets explicitly set flags override environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}
