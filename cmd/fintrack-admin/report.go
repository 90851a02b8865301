package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

// window flags are inclusive calendar days in the report location.
type windowFlags struct {
	from, to string
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last day, YYYY-MM-DD (inclusive)")
}

func (f *windowFlags) window(loc *time.Location) (*core.Window, error) {
	if f.from == "" && f.to == "" {
		return nil, nil
	}
	if f.from == "" || f.to == "" {
		return nil, fmt.Errorf("--from and --to must be given together")
	}
	start, err := time.ParseInLocation("2006-01-02", f.from, loc)
	if err != nil {
		return nil, fmt.Errorf("parse --from: %w", err)
	}
	last, err := time.ParseInLocation("2006-01-02", f.to, loc)
	if err != nil {
		return nil, fmt.Errorf("parse --to: %w", err)
	}
	w, err := core.NewWindow(start, last.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (o *options) summaryRequest(f *windowFlags) (services.SummaryRequest, error) {
	loc := o.cfg.Location()
	w, err := f.window(loc)
	if err != nil {
		return services.SummaryRequest{}, err
	}
	return services.SummaryRequest{OwnerID: o.owner, Window: w, Location: loc}, nil
}

func summaryCmd(opts *options) *cobra.Command {
	var wf windowFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print totals, category breakdown and monthly trend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			req, err := opts.summaryRequest(&wf)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), func(app *cli.App) error {
				sum, err := app.Reports.GetSummary(cmd.Context(), req)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), sum)
				}
				return printSummary(cmd.OutOrStdout(), sum)
			})
		},
	}

	wf.register(cmd)
	return cmd
}

func printSummary(out io.Writer, s core.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Income\t%s\t\n", s.Totals.TotalIncome)
	fmt.Fprintf(w, "Expense\t%s\t\n", s.Totals.TotalExpense)
	fmt.Fprintf(w, "Balance\t%s\t\n", s.Totals.Balance)
	fmt.Fprintln(w, "\t\t")

	if s.CategoryBreakdown.IsEmpty() {
		fmt.Fprintln(w, "No expenses\t\t")
	} else {
		for _, it := range s.CategoryBreakdown.Items {
			fmt.Fprintf(w, "%s\t%s\t\n", it.CategoryName, it.Amount)
		}
	}
	fmt.Fprintln(w, "\t\t")

	for _, p := range s.Trend {
		fmt.Fprintf(w, "%s\t%s\t\n", p.Label, p.Amount)
	}
	return w.Flush()
}

func budgetCmd(opts *options) *cobra.Command {
	var (
		wf    windowFlags
		spent string
	)

	cmd := &cobra.Command{
		Use:   "budget [category-id]",
		Short: "Show budget status for one or all categories",
		Long: `Show budget status. Spending is summed over the window (default: the
current month). With --spent the given amount is compared instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireOwner(); err != nil {
				return err
			}
			if spent != "" && len(args) == 0 {
				return fmt.Errorf("--spent needs a category id")
			}
			req, err := opts.summaryRequest(&wf)
			if err != nil {
				return err
			}

			return opts.withApp(cmd.Context(), func(app *cli.App) error {
				var report []core.BudgetStatus
				switch {
				case spent != "":
					m, err := core.ParseMoney(spent)
					if err != nil {
						return fmt.Errorf("parse --spent: %w", err)
					}
					st, err := app.Categories.BudgetStatus(cmd.Context(), opts.owner, args[0], m)
					if err != nil {
						return err
					}
					report = append(report, st)
				case len(args) == 1:
					st, err := app.Reports.CategoryBudget(cmd.Context(), req, args[0])
					if err != nil {
						return err
					}
					report = append(report, st)
				default:
					all, err := app.Reports.GetBudgetReport(cmd.Context(), req)
					if err != nil {
						return err
					}
					report = all
				}

				if opts.jsonOut {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CATEGORY\tBUDGET\tSPENT\tREMAINING\tSTATUS")
				for _, st := range report {
					status, budget, remaining := "ok", st.Budget.String(), st.Remaining.String()
					switch {
					case !st.Tracked:
						status, budget, remaining = "untracked", "-", "-"
					case st.OverBudget:
						status = "over"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", st.CategoryName, budget, st.Spent, remaining, status)
				}
				return w.Flush()
			})
		},
	}

	wf.register(cmd)
	cmd.Flags().StringVar(&spent, "spent", "", "compare this amount instead of the ledger sum")
	return cmd
}
