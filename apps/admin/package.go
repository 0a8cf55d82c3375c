package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")

	validate = validator.New()
	core.InitValidators(validate, translator)
	scorm.InitValidators(validate, translator)
}

func (cli *commandLine) packageCmd() *cobra.Command {
	pkgCmd := &cobra.Command{Use: "package", Short: "Manage SCORM packages"}

	var np scorm.NewPackage
	add := &cobra.Command{
		Use:   "add --title <title> --root <content root> [--version 1.2|2004]",
		Short: "Register an extracted package and resolve its manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pkg, err := cli.addPackage(cmd.Context(), np)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pkg)
		},
	}
	add.Flags().StringVar(&np.Title, "title", "", "package title")
	add.Flags().StringVar(&np.ContentRoot, "root", "", "directory of the package, relative to the content root")
	add.Flags().StringVar((*string)(&np.Version), "version", "", "SCORM version, detected from the manifest when omitted")

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve the manifest of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkg, err := cli.svc.ResolveManifest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pkg)
		},
	}

	pkgCmd.AddCommand(add, resolve)
	return pkgCmd
}

// addPackage creates the package, then tries to resolve its manifest.
// The package stays registered when resolution fails.
func (cli *commandLine) addPackage(ctx context.Context, np scorm.NewPackage) (scorm.Package, error) {
	if err := np.Validate(validate); err != nil {
		return scorm.Package{}, core.TranslateValidationError(err, translator, "package")
	}
	pkg, err := cli.svc.CreatePackage(ctx, np)
	if err != nil {
		return scorm.Package{}, err
	}

	resolved, err := cli.svc.ResolveManifest(ctx, pkg.ID)
	if err != nil {
		_, _ = fmt.Fprintf(cli.out, "warning: package %s is not launchable: %v\n", pkg.ID, errors.Cause(err))
		return pkg, nil
	}
	return resolved, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
