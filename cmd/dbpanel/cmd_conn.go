package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/willibrandon/dbpanel/internal/app"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
)

// newConnCmd creates the conn command group.
func newConnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage saved connections",
	}
	cmd.AddCommand(
		newConnListCmd(),
		newConnAddCmd(),
		newConnTestCmd(),
		newConnRemoveCmd(),
	)
	return cmd
}

func newConnListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service) error {
				conns := svc.Connections()
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), conns)
				}
				renderConnections(cmd.OutOrStdout(), conns)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

// connFlags holds the connection form fields shared by add and test.
type connFlags struct {
	input          models.ConnectionInput
	promptPassword bool
}

func (f *connFlags) register(cmd *cobra.Command, withName bool) {
	fs := cmd.Flags()
	if withName {
		fs.StringVar(&f.input.Name, "name", "", "connection name")
		cmd.MarkFlagRequired("name")
	}
	fs.StringVar(&f.input.Host, "host", "localhost", "server host")
	fs.IntVar(&f.input.Port, "port", models.DefaultPort, "server port")
	fs.StringVar(&f.input.Database, "database", "", "database name")
	fs.StringVar(&f.input.Username, "user", "", "user name")
	fs.BoolVar(&f.input.SSL, "ssl", false, "require SSL")
	fs.StringVar(&f.input.PasswordCommand, "password-command", "", "command that prints the password")
	fs.BoolVar(&f.promptPassword, "prompt-password", false, "prompt for the password")
}

// resolve prompts for the password when requested.
func (f *connFlags) resolve() (models.ConnectionInput, error) {
	in := f.input
	if f.promptPassword {
		pw, err := db.PromptPassword(fmt.Sprintf("Password for %s: ", in.String()))
		if err != nil {
			return in, err
		}
		in.Password = pw
	}
	return in, nil
}

func newConnAddCmd() *cobra.Command {
	var flags connFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Test and save a connection",
		Long: `Connect to the server with the given parameters and save the connection only if
the connection succeeds. Prefer --password-command over --prompt-password: prompted
passwords are stored in plaintext.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.resolve()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *app.Service) error {
				summary, err := svc.AddConnection(cmd.Context(), in)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Connection %q saved (%s)", summary.Name, summary.ID)
				return nil
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newConnTestCmd() *cobra.Command {
	var flags connFlags

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check a server connection without saving anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := flags.resolve()
			if err != nil {
				return err
			}
			in.ApplyDefaults()
			return withService(cmd.Context(), func(svc *app.Service) error {
				if err := svc.TestConnection(cmd.Context(), in.ConnectionParams); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Connection to %s succeeded", in.String())
				return nil
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newConnRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id-or-name>",
		Short: "Remove a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service) error {
				if err := svc.RemoveConnection(cmd.Context(), args[0]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Connection %q removed", args[0])
				return nil
			})
		},
	}
}
