package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/core"
)

func categoriesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage an owner's expense categories",
	}

	cmd.AddCommand(listCategoriesCmd(opts))
	cmd.AddCommand(createCategoryCmd(opts))
	cmd.AddCommand(updateCategoryCmd(opts))
	cmd.AddCommand(deleteCategoryCmd(opts))

	return cmd
}

func listCategoriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(app *cli.App) error {
				cats, err := app.Categories.List(cmd.Context(), opts.owner)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return writeJSON(out, cats)
				}
				if len(cats) == 0 {
					fmt.Fprintln(out, "No categories found.")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tBUDGET")
				for _, c := range cats {
					budget := "-"
					if c.Budget.IsPositive() {
						budget = c.Budget.String()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, budget)
				}
				return w.Flush()
			})
		},
	}
}

func createCategoryCmd(opts *options) *cobra.Command {
	var budget string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			var b *core.Money
			if budget != "" {
				m, err := core.ParseMoney(budget)
				if err != nil {
					return fmt.Errorf("parse --budget: %w", err)
				}
				b = &m
			}
			return opts.withApp(cmd.Context(), func(app *cli.App) error {
				c, err := app.Categories.Create(cmd.Context(), opts.owner, args[0], b)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), c)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created category %q (%s)\n", c.Name, c.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&budget, "budget", "", "monthly budget, e.g. 250.00 (0 or empty: untracked)")
	return cmd
}

func updateCategoryCmd(opts *options) *cobra.Command {
	var name, budget string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a category or change its budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			var patch core.CategoryPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("budget") {
				m, err := core.ParseMoney(budget)
				if err != nil {
					return fmt.Errorf("parse --budget: %w", err)
				}
				patch.Budget = &m
			}
			return opts.withApp(cmd.Context(), func(app *cli.App) error {
				c, err := app.Categories.Update(cmd.Context(), opts.owner, args[0], patch)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), c)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated category %q (%s)\n", c.Name, c.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&budget, "budget", "", "new budget")
	return cmd
}

func deleteCategoryCmd(opts *options) *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category",
		Long: `Delete a category. --policy is required:
  block    refuse when expenses still reference the category
  cascade  delete the category together with its expenses`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			p, err := core.ParseDeletePolicy(policy)
			if err != nil {
				return fmt.Errorf("--policy must be block or cascade: %w", err)
			}
			return opts.withApp(cmd.Context(), func(app *cli.App) error {
				res, err := app.Categories.Delete(cmd.Context(), opts.owner, args[0], p)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %s (%s, %d expenses removed)\n",
					res.CategoryID, res.Policy, res.RemovedExpenses)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "block or cascade")
	return cmd
}
