package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/baderkha/shelter/pkg/logging"
	"github.com/baderkha/shelter/pkg/migrate"
	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/state"
)

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List supported database engines",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, e := range connector.Default.Engines() {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
		},
	}
}

func newTablesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tables",
		Short:   "List the tables of the source (or --side dest) database",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, _ []string) error {
			side, _ := cmd.Flags().GetString("side")
			if side != config.SourcePrefix && side != config.DestinationPrefix {
				return fmt.Errorf("--side must be %s or %s", config.SourcePrefix, config.DestinationPrefix)
			}
			ep, err := config.LoadConnection(v, side)
			if err != nil {
				return err
			}
			log := logging.New(os.Stderr, v.GetBool(config.KeyVerbose))

			c, err := connector.Default.New(ep, connector.Options{Log: log, QueryLog: v.GetBool(config.KeyVerbose), MaxConns: 1})
			if err != nil {
				return err
			}
			defer c.Disconnect()
			if err := c.Connect(cmd.Context()); err != nil {
				s := migrate.SideSource
				if side == config.DestinationPrefix {
					s = migrate.SideDestination
				}
				return &migrate.ConnectionError{Side: s, Err: err}
			}
			tables, err := c.GetTables(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	config.RegisterEndpointFlags(cmd.Flags())
	cmd.Flags().String("side", config.SourcePrefix, "Which endpoint to list, src or dest")
	return cmd
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the source table can be migrated into the destination table",
		Long: `Connects to both databases and compares the two table schemas through the canonical
column types. Exit status: 1 unsupported engine, 2 connection failure, 3 table not found or incompatible.`,
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, dst, err := config.LoadEndpoints(v)
			if err != nil {
				return err
			}
			verbose := v.GetBool(config.KeyVerbose)
			log := logging.New(os.Stderr, verbose)
			job := config.Job{Source: src, Destination: dst}
			return migrate.NewValidator(connector.Default, log, verbose).Validate(cmd.Context(), job)
		},
	}
	config.RegisterEndpointFlags(cmd.Flags())
	return cmd
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "migrate",
		Short:   "Migrate the source table into the destination table",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log := logging.New(os.Stderr, cfg.Verbose)
			log.Info().
				Str("job_id", job.ID).
				Str("source", job.Source.Engine+"://"+job.Source.Addr()+"/"+job.Source.Table).
				Str("destination", job.Destination.Engine+"://"+job.Destination.Addr()+"/"+job.Destination.Table).
				Msg("starting migration")

			mgr, err := openState(cfg, log)
			if err != nil {
				return err
			}
			opts := []migrate.Option{
				migrate.WithLogger(log),
				migrate.WithStateManager(mgr),
			}
			if !cfg.Verbose {
				opts = append(opts, migrate.WithObserver(newProgress(os.Stderr)))
			}

			sum, err := migrate.NewOrchestrator(cfg, opts...).Run(cmd.Context(), job)
			if err != nil {
				return err
			}
			sum.Print(cmd.OutOrStdout())
			return nil
		},
	}
	config.RegisterEndpointFlags(cmd.Flags())
	config.RegisterRunFlags(cmd.Flags())
	return cmd
}

// openState : run history when --state-db is set. A run left STARTED by a killed
// process is marked ABORTED first.
func openState(cfg config.Config, log zerolog.Logger) (state.Manager, error) {
	if cfg.StateDB == "" {
		return state.Noop{}, nil
	}
	mgr, err := state.NewSqliteGormManager(cfg.StateDB, log)
	if err != nil {
		return nil, err
	}
	if err := mgr.AbortStarted(); err != nil {
		log.Warn().Err(err).Msg("could not abort the previous run")
	}
	return mgr, nil
}
