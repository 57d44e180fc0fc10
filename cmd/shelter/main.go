package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/baderkha/shelter/pkg/migrate"
	"github.com/baderkha/shelter/pkg/migrate/config"

	// engines register themselves with connector.Default
	_ "github.com/baderkha/shelter/pkg/migrate/connector/mysql"
	_ "github.com/baderkha/shelter/pkg/migrate/connector/postgres"
	_ "github.com/baderkha/shelter/pkg/migrate/connector/snowflake"
)

const keyConfigFile = "config"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(config.NewViper()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(migrate.ExitCode(err))
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "shelter",
		Short:         "Epic Shelter - single table database migrations",
		Long:          "Copies one table between database engines in parallel batches, optionally staging parquet files in object storage.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(keyConfigFile, "", "Config file (json, yaml or toml) holding flag values")

	root.AddCommand(
		newVersionCmd(),
		newEnginesCmd(),
		newTablesCmd(v),
		newValidateCmd(v),
		newMigrateCmd(v),
	)
	return root
}

// bindFlags : flags, env and the optional config file all feed v
func bindFlags(v *viper.Viper) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString(keyConfigFile); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s : %w", path, err)
			}
		}
		return nil
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Epic Shelter Engine v%s\n", config.Version)
		},
	}
}
