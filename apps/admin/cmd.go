package main

import (
	"context"
	"database/sql"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

var isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) } // mockable

type commandLine struct {
	db  *sql.DB
	svc *scorm.Service
	out io.Writer
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args[1:])
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	return root.ExecuteContext(context.Background())
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "SCORM runtime administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(cli.migrateCmd())
	root.AddCommand(cli.packageCmd())
	root.AddCommand(cli.reportCmd())
	return root
}
