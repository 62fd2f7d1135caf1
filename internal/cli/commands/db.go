package commands

import (
	"github.com/spf13/cobra"
)

func newDBCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBInitCommand(flags))
	return cmd
}

func newDBInitCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the metadata and migration history tables",
		Long: `Create the pages, _sys_models and _sys_fields tables in the metadata database
and _sys_migrations in the user database.

This command is idempotent - it's safe to run multiple times.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd, flags)
			if err != nil {
				return err
			}
			s, err := openStores(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.initialize(cmd.Context()); err != nil {
				return err
			}
			env.printer.Success("Database initialized (%s metadata, %s data)",
				s.meta.Dialect, s.data.Dialect)
			return nil
		},
	}
}
