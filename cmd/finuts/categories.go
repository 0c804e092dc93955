package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/storage"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage spending categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active categories",
		RunE: func(c *cobra.Command, _ []string) error {
			store, err := openStorage(c)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categories, err := store.ListCategories(c.Context())
			if err != nil {
				return err
			}
			for _, cat := range categories {
				fmt.Printf("%-20s %s\n", cat.Name, cat.Type)
			}
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			store, err := openStorage(c)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			catType, _ := c.Flags().GetString("type")
			added, err := store.AddCategory(c.Context(), args[0], model.CategoryType(catType))
			if err != nil {
				return err
			}
			fmt.Printf("Added category %q (%s)\n", added.Name, added.Type)
			return nil
		},
	}
	addCmd.Flags().String("type", "expense", "category type (income, expense, system)")
	cmd.AddCommand(addCmd)

	return cmd
}

func openStorage(c *cobra.Command) (*storage.SQLiteStorage, error) {
	dbPath, err := defaultDBPath()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(c.Context()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
