package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/willibrandon/dbpanel/internal/app"
	"github.com/willibrandon/dbpanel/internal/export"
	"github.com/willibrandon/dbpanel/internal/history"
)

// splitTable parses schema.table; a bare name means the public schema.
func splitTable(s string) (schema, table string, err error) {
	schema, table, found := strings.Cut(s, ".")
	if !found {
		schema, table = "public", s
	}
	if schema == "" || table == "" {
		return "", "", fmt.Errorf("invalid table %q, expected schema.table", s)
	}
	return schema, table, nil
}

func newTablesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "tables <conn>",
		Short: "List the tables of a connection grouped by schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service) error {
				if refresh {
					if _, err := svc.InvalidateTables(args[0]); err != nil {
						return err
					}
				}
				conn, err := svc.Connection(args[0])
				if err != nil {
					return err
				}
				tables, err := svc.Tables(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), tables)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTableTree(conn, tables))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached table list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data <conn> <schema.table>",
		Short: "Show the first rows of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, table, err := splitTable(args[1])
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *app.Service) error {
				data, err := svc.LoadTableData(cmd.Context(), args[0], schema, table)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), data)
				}
				renderTableData(cmd.OutOrStdout(), data)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <conn> <sql>",
		Short: "Run a SQL statement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service) error {
				res, err := svc.ExecuteQuery(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				renderQueryResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var search string
	var limit int

	cmd := &cobra.Command{
		Use:   "history <conn>",
		Short: "Show recently executed statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *app.Service) error {
				entries, err := svc.History(cmd.Context(), args[0], search, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				renderHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only statements containing this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newExportCmd() *cobra.Command {
	var out, format string

	cmd := &cobra.Command{
		Use:   "export <conn> <schema.table>",
		Short: "Export the first rows of a table to CSV or JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, table, err := splitTable(args[1])
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(svc *app.Service) error {
				res, err := svc.ExportTable(cmd.Context(), args[0], schema, table, out, f)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "%s", res.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file path")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or json")
	cmd.MarkFlagRequired("out")
	return cmd
}
