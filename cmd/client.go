// File: cmd/client.go
package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/control"
)

// newControlClient points a client at the configured control server.
func newControlClient(cmd *cobra.Command) (*control.Client, error) {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	ctl := cfg.Control()
	var opts []control.ClientOption
	if ctl.AuthSecret != "" {
		token, err := control.NewTokenManager(ctl.AuthSecret, 0).Issue("webpilot-cli")
		if err != nil {
			return nil, fmt.Errorf("failed to issue control token: %w", err)
		}
		opts = append(opts, control.WithToken(token))
	}
	return control.NewClient(ctl.ListenAddr, opts...), nil
}

func addAddrFlag(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "control server address (overrides control.listen_addr)")
}

func newStartCmd() *cobra.Command {
	var file string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a program on the running server (the saved one when -f is omitted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			var program schemas.Program
			if file != "" {
				if program, err = readProgramFile(file); err != nil {
					return err
				}
			}
			if err := client.Start(cmd.Context(), program); err != nil {
				if control.IsConflict(err) {
					return fmt.Errorf("a program is already running; stop it first")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Program started.")
			return nil
		},
	}
	startCmd.Flags().StringVarP(&file, "file", "f", "", "program file (JSON or YAML)")
	addAddrFlag(startCmd)
	return startCmd
}

func newStopCmd() *cobra.Command {
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running program after its current step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop requested.")
			return nil
		},
	}
	addAddrFlag(stopCmd)
	return stopCmd
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a program is running and which program is saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			snap, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if snap.Program == nil {
					snap.Program = schemas.Program{}
				}
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "running: %t\n", snap.IsRunning)
			fmt.Fprintf(out, "program: %d step(s)\n", len(snap.Program))
			for i, step := range snap.Program {
				fmt.Fprintf(out, "  %2d  %s\n", i, step.Type)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	addAddrFlag(statusCmd)
	return statusCmd
}

func newSaveCmd() *cobra.Command {
	var file string
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Save a program on the running server without starting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := readProgramFile(file)
			if err != nil {
				return err
			}
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Save(cmd.Context(), program); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d step(s).\n", len(program))
			return nil
		},
	}
	saveCmd.Flags().StringVarP(&file, "file", "f", "", "program file (JSON or YAML)")
	_ = saveCmd.MarkFlagRequired("file")
	addAddrFlag(saveCmd)
	return saveCmd
}

func newURLCmd() *cobra.Command {
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print the URL of the browser's active page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			url, err := client.CurrentURL(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	addAddrFlag(urlCmd)
	return urlCmd
}
