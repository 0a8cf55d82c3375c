package main

import (
	"context"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-scorm/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command> [args]",
		Short: "Run a goose migration command (up, up-to, down, down-to, redo, reset, status, version, create, fix)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args)
		},
	}
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	database.InitGoose()
	return gooseRunFunc(ctx, args[0], cli.db, database.MigrationsDir(), args[1:]...)
}
