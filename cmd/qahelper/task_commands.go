package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cjhyy/interview-QA-help/internal/app"
	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/usecase"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var force, wait bool

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Generate QA items for a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				sub, err := a.Pipeline().Submit(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				if !wait {
					if !ctx.wantTable(cmd) {
						return writeJSON(cmd, sub)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s: %s\n", sub.TaskID, describeSubmission(sub))
					return nil
				}

				a.Pipeline().Wait()
				view, err := a.Pipeline().Status(cmd.Context(), sub.TaskID)
				if err != nil {
					return err
				}
				return printStatus(cmd, ctx, sub.TaskID, view)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess even when a completed result exists")
	cmd.Flags().BoolVar(&wait, "wait", false, "Print the final status once the run settles")
	return cmd
}

func describeSubmission(sub usecase.Submission) string {
	switch {
	case sub.Cached:
		return "completed (cached)"
	case sub.Started:
		return "processing started"
	default:
		return string(sub.Status)
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's status and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				view, err := a.Pipeline().Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printStatus(cmd, ctx, args[0], view)
			})
		},
	}
}

func printStatus(cmd *cobra.Command, ctx *commandContext, id string, view usecase.StatusView) error {
	if !ctx.wantTable(cmd) {
		return writeJSON(cmd, view)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task:   %s\n", id)
	fmt.Fprintf(out, "URL:    %s\n", view.URL)
	fmt.Fprintf(out, "Status: %s\n", view.Status)
	if view.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:  %s\n", view.ErrorMessage)
	}
	if view.Data == nil {
		return nil
	}
	d := view.Data
	fmt.Fprintf(out, "Title:  %s\n", d.Title)
	fmt.Fprintf(out, "Score:  %.1f  Category: %s  Provider: %s  Time: %dms\n",
		d.QualityScore, d.Category, d.ProviderUsed, d.ProcessingTime.Total)
	if len(d.Keywords) > 0 {
		fmt.Fprintf(out, "Keywords: %s\n", strings.Join(d.Keywords, ", "))
	}
	fmt.Fprintln(out, qaTable(d.QA))
	return nil
}

func qaTable(records []domain.QARecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.Itoa(r.Order),
			clip(r.Question, 60),
			string(r.Type),
			string(r.Difficulty),
			strconv.FormatFloat(r.QualityScore, 'f', 1, 64),
		})
	}
	return renderTable(
		[]string{"#", "Question", "Type", "Difficulty", "Score"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func newQACommand(ctx *commandContext) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "qa <task-id>",
		Short: "Print a task's QA records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				if markdown {
					md, err := a.Pipeline().Markdown(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					_, err = fmt.Fprint(cmd.OutOrStdout(), md)
					return err
				}

				records, err := a.Pipeline().QA(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ctx.wantTable(cmd) {
					return writeJSON(cmd, records)
				}
				fmt.Fprintln(cmd.OutOrStdout(), qaTable(records))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "Export as Markdown")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its QA records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				if err := a.Pipeline().Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
