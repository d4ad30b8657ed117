package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"lostfound/internal/repository"
	"lostfound/internal/storage"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(globalOptions *GlobalOptions) *cobra.Command {
	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Long: `Adds missing tables, columns and indexes and applies pending index
migrations. Nothing is ever dropped. Use 'migrate status' to look first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, globalOptions)
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Compare the live schema with the desired one without changing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrateStatus(cmd, globalOptions)
		},
	}

	migrateCmd.AddCommand(statusCmd)
	return migrateCmd
}

func migrate(cmd *cobra.Command, globalOptions *GlobalOptions) error {
	rt, err := globalOptions.open(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s (%s)\n", rt.Location.DatabasePath, rt.Legacy)
	for _, r := range rt.Evolution {
		fmt.Fprintf(out, "Table %-10s %s\n", r.Table, describeEvolution(r))
	}
	for _, m := range rt.Migrations {
		fmt.Fprintf(out, "Applied %05d %s\n", m.Version, m.Name)
	}
	if len(rt.Migrations) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
	}
	return nil
}

func describeEvolution(r repository.EvolutionReport) string {
	switch {
	case r.TableCreated:
		return "created"
	case r.AlreadyCurrent:
		return "up to date"
	default:
		return "added " + strings.Join(r.ColumnsAdded, ", ")
	}
}

// statusView is everything 'migrate status' prints.
type statusView struct {
	Database   string
	Exists     bool
	Legacy     string // set when only a legacy store exists
	Tables     []repository.SchemaDiff
	Migrations []repository.MigrationState
}

func migrateStatus(cmd *cobra.Command, globalOptions *GlobalOptions) error {
	ctx := cmd.Context()
	loc := storage.Layout(globalOptions.root)
	view := statusView{Database: loc.DatabasePath}

	if _, err := os.Stat(loc.DatabasePath); err == nil {
		view.Exists = true
	} else if _, err := os.Stat(loc.LegacyDatabasePath); err == nil {
		view.Legacy = loc.LegacyDatabasePath
	}

	if !view.Exists {
		// Opening would create the file, so describe the empty store instead.
		for _, schema := range repository.OwnedTables() {
			view.Tables = append(view.Tables, absentDiff(schema))
		}
		renderStatus(cmd.OutOrStdout(), view)
		return nil
	}

	repo, err := repository.Open(ctx, loc.DatabasePath, repository.Options{LockTimeout: globalOptions.Conf.LockTimeout, ReadOnly: true})
	if err != nil {
		return err
	}
	defer repo.Close()

	for _, schema := range repository.OwnedTables() {
		diff, err := repo.Diff(ctx, schema)
		if err != nil {
			return err
		}
		view.Tables = append(view.Tables, diff)
	}
	if view.Migrations, err = repo.MigrationStatus(ctx); err != nil {
		return err
	}

	renderStatus(cmd.OutOrStdout(), view)
	return nil
}

func absentDiff(schema repository.TableSchema) repository.SchemaDiff {
	diff := repository.SchemaDiff{Table: schema.Name}
	for _, c := range schema.Columns {
		diff.Missing = append(diff.Missing, c.Name)
		if c.Unique {
			diff.MissingIndex = append(diff.MissingIndex, repository.UniqueIndexName(schema.Name, c.Name))
		}
	}
	return diff
}

func renderStatus(w io.Writer, view statusView) {
	switch {
	case view.Exists:
		fmt.Fprintf(w, "Database: %s\n", view.Database)
	case view.Legacy != "":
		fmt.Fprintf(w, "Database: %s (not created yet, legacy store %s will be copied)\n", view.Database, view.Legacy)
	default:
		fmt.Fprintf(w, "Database: %s (not created yet)\n", view.Database)
	}

	fmt.Fprintf(w, "%-12s %-9s %s\n", "TABLE", "STATE", "MISSING")
	for _, d := range view.Tables {
		state := "outdated"
		switch {
		case !d.Exists:
			state = "absent"
		case d.Current():
			state = "current"
		}
		fmt.Fprintf(w, "%-12s %-9s %s\n", d.Table, state, listOrDash(append(append([]string{}, d.Missing...), d.MissingIndex...)))
		if len(d.Extra) > 0 {
			fmt.Fprintf(w, "%-12s %-9s %s\n", "", "extra", strings.Join(d.Extra, ", "))
		}
	}

	if len(view.Migrations) == 0 {
		fmt.Fprintln(w, "Migrations: none recorded")
		return
	}
	fmt.Fprintln(w, "Migrations:")
	for _, m := range view.Migrations {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "  %05d %-32s %s\n", m.Version, m.Name, state)
	}
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
