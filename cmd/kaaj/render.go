package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/models"
	"kaaj/internal/validation"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	}
	statusStyles = map[models.Status]lipgloss.Style{
		models.StatusPending:    mutedStyle,
		models.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		models.StatusCompleted:  successStyle,
	}
)

// userMessage renders err for the terminal: the localized message for known
// kinds, one line per field for validation failures.
func userMessage(err error) string {
	var fields validation.Errors
	if errors.As(err, &fields) {
		lines := make([]string, 0, len(fields))
		for _, f := range fields {
			lines = append(lines, f.Field+": "+f.Message)
		}
		return strings.Join(lines, "\n")
	}
	if apperrors.KindOf(err) != apperrors.KindUnknown {
		return apperrors.Message(err)
	}
	return err.Error()
}

var bengaliDigits = []rune("০১২৩৪৫৬৭৮৯")

// bengaliNumber writes n with Bengali digits.
func bengaliNumber(n int) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return bengaliDigits[r-'0']
		}
		return r
	}, fmt.Sprint(n))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTodoTable(list []models.Todo, now time.Time) string {
	if len(list) == 0 {
		return mutedStyle.Render("No todos yet.")
	}

	rows := make([][]string, 0, len(list)+1)
	rows = append(rows, []string{"ID", "PRIORITY", "STATUS", "DUE", "TITLE"})
	for _, t := range list {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Local().Format("2006-01-02")
			if t.Status != models.StatusCompleted && t.DueDate.Before(validation.StartOfDay(now)) {
				due = errorStyle.Render(due)
			}
		}
		rows = append(rows, []string{
			shortID(t.ID),
			priorityStyles[t.Priority].Render(string(t.Priority)),
			statusStyles[t.Status].Render(string(t.Status)),
			due,
			t.Title,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for r, row := range rows {
		for i, cell := range row {
			if r == 0 {
				cell = headerStyle.Render(cell)
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatUser(u models.User) string {
	lines := []string{
		labelStyle.Render("Name:     ") + u.Name,
		labelStyle.Render("Email:    ") + u.Email,
		labelStyle.Render("Verified: ") + fmt.Sprint(u.EmailVerified),
	}
	if u.PhotoURL != "" {
		lines = append(lines, labelStyle.Render("Photo:    ")+u.PhotoURL)
	}
	if !u.CreatedAt.IsZero() {
		lines = append(lines, labelStyle.Render("Joined:   ")+u.CreatedAt.Local().Format("2006-01-02"))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
