package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/confstore/confstore/internal/db"
	"github.com/confstore/confstore/internal/db/tx"
	"github.com/confstore/confstore/internal/settings"
)

// ErrCategoryNotFound is returned by the updated command for categories without persisted settings.
var ErrCategoryNotFound = errors.New("category has no persisted settings")

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(migrateCmd, getCmd, setCmd, deleteCmd, updatedCmd, importCmd, defaultsCmd)
}

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the settings tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gdb, err := db.Open(&cfg)
			if err != nil {
				return err
			}

			if err = db.Migrate(gdb); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "database migrated")

			return err
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <category> [key]",
		Short: "Print the settings of a category merged with its defaults",
		Args:  cobra.RangeArgs(1, 2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				values, err := d.Store.GetSettings(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), values)
			}

			value, ok, err := d.Store.GetSetting(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if !ok {
				return errors.Errorf("setting %s not found in category %s", args[1], args[0])
			}

			return printJSON(cmd.OutOrStdout(), value)
		},
	}

	setCmd = &cobra.Command{
		Use:   "set <category> <json>",
		Short: "Replace all settings of a category with a JSON object, {} deletes them",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			var values settings.Settings
			if err := json.Unmarshal([]byte(args[1]), &values); err != nil {
				return errors.Wrap(err, "settings must be a JSON object")
			}

			d, err := openDaemon()
			if err != nil {
				return err
			}

			return d.Store.SaveSettings(cmd.Context(), args[0], values)
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <category> [name...]",
		Short: "Delete named settings of a category, or the whole category",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon()
			if err != nil {
				return err
			}

			return d.Store.DeleteSettings(cmd.Context(), args[0], args[1:]...)
		},
	}

	updatedCmd = &cobra.Command{
		Use:   "updated <category>",
		Short: "Print the time of the last write to a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDaemon()
			if err != nil {
				return err
			}

			updated, ok, err := d.Store.GetCategoryTimeUpdated(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !ok {
				return errors.Wrap(ErrCategoryNotFound, args[0])
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), updated.UTC().Format(time.RFC3339))

			return err
		},
	}

	importCmd = &cobra.Command{
		Use:   "import <file.json>",
		Short: "Save the categories of a JSON file in one transaction",
		Long: `Import reads a JSON object mapping category names to settings objects and
saves every category. Either all categories are saved or none.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := readImportFile(args[0])
			if err != nil {
				return err
			}

			d, err := openDaemon()
			if err != nil {
				return err
			}

			return importCategories(cmd, d.DB, d.Store, categories)
		},
	}

	defaultsCmd = &cobra.Command{
		Use:   "defaults",
		Short: "Print the configured default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := openDaemon()
			if err != nil {
				return err
			}

			out := make(map[string]settings.Settings)
			for _, category := range d.Store.Categories() {
				out[category] = d.Store.Defaults(category)
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}
)

func readImportFile(path string) (map[string]settings.Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, errors.Wrap(err, "failed to read import file")
	}

	var categories map[string]settings.Settings
	if err = json.Unmarshal(data, &categories); err != nil {
		return nil, errors.Wrap(err, "failed to decode import file")
	}

	return categories, nil
}

// importCategories saves all categories inside one ambient transaction.
func importCategories(cmd *cobra.Command, gdb *gorm.DB, store *settings.Store, categories map[string]settings.Settings) error {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}

	sort.Strings(names)

	err := gdb.WithContext(cmd.Context()).Transaction(func(gtx *gorm.DB) error {
		ctx := tx.WithTx(cmd.Context(), gtx)

		for _, name := range names {
			if err := store.SaveSettings(ctx, name, categories[name]); err != nil {
				return errors.Wrapf(err, "failed to import category %s", name)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d categories\n", len(names))

	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
