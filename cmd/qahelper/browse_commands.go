package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cjhyy/interview-QA-help/internal/app"
	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
	"github.com/cjhyy/interview-QA-help/internal/usecase"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var sort string
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch ports.ListSort(sort) {
			case ports.SortRecent, ports.SortPopular:
			default:
				return fmt.Errorf("invalid --sort %q (want recent or popular)", sort)
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				result, err := a.Pipeline().List(cmd.Context(), usecase.ListRequest{
					Sort:  ports.ListSort(sort),
					Page:  page,
					Limit: limit,
				})
				if err != nil {
					return err
				}
				if !ctx.wantTable(cmd) {
					return writeJSON(cmd, result)
				}
				fmt.Fprintln(cmd.OutOrStdout(), taskTable(result.Items))
				fmt.Fprintf(cmd.OutOrStdout(), "Page %d, %d of %d tasks\n", result.Page, len(result.Items), result.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sort, "sort", string(ports.SortRecent), "Sort order: recent or popular")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", usecase.DefaultPageLimit, "Items per page (1-50)")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search completed tasks by title",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				tasks, err := a.Pipeline().Search(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if !ctx.wantTable(cmd) {
					return writeJSON(cmd, tasks)
				}
				fmt.Fprintln(cmd.OutOrStdout(), taskTable(tasks))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", usecase.DefaultPageLimit, "Maximum results (1-50)")
	return cmd
}

func taskTable(tasks []domain.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID,
			clip(t.Title, 48),
			strconv.Itoa(t.QACount),
			strconv.FormatFloat(t.QualityScore, 'f', 1, 64),
			string(t.Category),
			strconv.FormatInt(t.AccessCount, 10),
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "QA", "Score", "Category", "Views", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight, alignLeft},
	)
}
