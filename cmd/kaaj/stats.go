package main

import (
	"fmt"
	"strings"
	"time"

	"kaaj/internal/analytics"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show completion statistics and trends",
	RunE:  withEnv(runStats),
}

var statsRange string

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsRange, "range", "r", string(analytics.RangeWeek), "Period (week, month, year)")
}

func runStats(cmd *cobra.Command, args []string, e *env) error {
	r, err := analytics.ParseTimeRange(statsRange)
	if err != nil {
		return err
	}
	if err := e.requireUser(); err != nil {
		return err
	}
	list, err := e.todos.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(formatReport(analytics.Compute(list, r, time.Now()), analytics.Account(list)))
	return nil
}

func formatTrend(t analytics.Trend) string {
	if t.Positive {
		return successStyle.Render(t.Text)
	}
	return errorStyle.Render(t.Text)
}

// sparkline draws one bar per daily bucket.
func sparkline(values []int) string {
	bars := []rune("▁▂▃▄▅▆▇█")
	top := 0
	for _, v := range values {
		top = max(top, v)
	}
	var b strings.Builder
	for _, v := range values {
		if top == 0 {
			b.WriteRune(bars[0])
			continue
		}
		b.WriteRune(bars[v*(len(bars)-1)/top])
	}
	return b.String()
}

func formatReport(rep analytics.Report, acct analytics.AccountStats) string {
	row := func(label, value, trend string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Width(14).Render(label),
			lipgloss.NewStyle().Width(8).Render(value),
			trend)
	}

	summary := strings.Join([]string{
		headerStyle.Render(fmt.Sprintf("Last %s", rep.Range)),
		row("Total", bengaliNumber(rep.Counts.Total), formatTrend(rep.Trends.Total)),
		row("Completed", bengaliNumber(rep.Counts.Completed), formatTrend(rep.Trends.Completed)),
		row("Remaining", bengaliNumber(rep.Counts.Remaining), formatTrend(rep.Trends.Remaining)),
		row("Completion", bengaliNumber(rep.CompletionRate)+"%", formatTrend(rep.Trends.CompletionRate)),
	}, "\n")

	priorities := strings.Join([]string{
		headerStyle.Render("Priority"),
		row("High", bengaliNumber(rep.Priorities.High), ""),
		row("Medium", bengaliNumber(rep.Priorities.Medium), ""),
		row("Low", bengaliNumber(rep.Priorities.Low), ""),
	}, "\n")

	daily := strings.Join([]string{
		headerStyle.Render("Daily"),
		labelStyle.Width(14).Render("Created") + sparkline(rep.Daily.New),
		labelStyle.Width(14).Render("Completed") + sparkline(rep.Daily.Completed),
	}, "\n")

	account := mutedStyle.Render(fmt.Sprintf("All time: %s todos, %s completed, activity %s%%",
		bengaliNumber(acct.Total), bengaliNumber(acct.Completed), bengaliNumber(acct.ActivityRate)))

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, summary, "    ", priorities),
		"", daily, "", account))
}
