// File: cmd/program.go
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newProgramCmd() *cobra.Command {
	programCmd := &cobra.Command{
		Use:   "program",
		Short: "Import, export and validate program documents",
	}
	programCmd.AddCommand(newProgramExportCmd())
	programCmd.AddCommand(newProgramImportCmd())
	programCmd.AddCommand(newProgramValidateCmd())
	return programCmd
}

// newProgramExportCmd writes the saved program. The format follows the
// output file's extension; without -o JSON goes to stdout.
func newProgramExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the saved program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.Load(ctx)
			if err != nil {
				return err
			}

			format := schemas.FormatJSON
			if output != "" {
				format = schemas.FormatFromPath(output)
			}
			data, err := schemas.Encode(snap.Program, format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d step(s) to %s.\n", len(snap.Program), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.json, .yaml or .yml)")
	return cmd
}

// newProgramImportCmd replaces the saved program. It writes the store
// directly, so it refuses while a run is marked active.
func newProgramImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a program file and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			program, err := readProgramFile(file)
			if err != nil {
				return err
			}

			st, err := openStore(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.Load(ctx)
			if err != nil {
				return err
			}
			if snap.IsRunning {
				return errors.New("a program is marked running; stop it before importing")
			}
			if err := st.Save(ctx, schemas.RunSnapshot{Program: program}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d step(s).\n", len(program))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "program file (JSON or YAML, legacy URL lists accepted)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newProgramValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a program file without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := readProgramFile(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid, %d step(s).\n", file, len(program))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "program file (JSON or YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
