package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/koustreak/backoffice/internal/schema"
	"github.com/spf13/cobra"
)

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the configured schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, closeDB, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			names, err := schema.ForDB(db, cfg.Database.ToDatabase().Schema).ListTables(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <table>",
		Short: "Show the columns and foreign keys of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, closeDB, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			reader := schema.ForDB(db, cfg.Database.ToDatabase().Schema)
			info, err := reader.InspectTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fks, err := reader.ForeignKeys(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(cmd, info, fks)
		},
	}
}

func printTable(cmd *cobra.Command, info *schema.TableInfo, fks []schema.ForeignKey) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s.%s\n\n", info.Schema, info.Name)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNULL\tKEY\tDEFAULT")
	for _, c := range info.Columns {
		key := ""
		switch {
		case c.IsPrimaryKey:
			key = "PK"
		case c.IsUnique:
			key = "UNIQUE"
		}
		def := ""
		if c.DefaultValue != nil {
			def = *c.DefaultValue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.UDTName, yesNo(c.IsNullable), key, def)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var refs []schema.ForeignKey
	for _, fk := range fks {
		if fk.FromTable == info.Name || fk.ToTable == info.Name {
			refs = append(refs, fk)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FOREIGN KEY\tFROM\tTO")
	for _, fk := range refs {
		fmt.Fprintf(tw, "%s\t%s.%s\t%s.%s\n", fk.Name, fk.FromTable, fk.FromColumn, fk.ToTable, fk.ToColumn)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
