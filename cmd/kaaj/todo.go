package main

import (
	"fmt"
	"strings"
	"time"

	"kaaj/internal/models"

	"github.com/spf13/cobra"
)

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage your todos",
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos, newest first",
	RunE:  withEnv(runTodoList),
}

var todoAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a todo",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withEnv(runTodoAdd),
}

var todoStatusCmd = &cobra.Command{
	Use:   "status <id> <pending|in-progress|completed>",
	Short: "Set the status of a todo",
	Args:  cobra.ExactArgs(2),
	RunE:  withEnv(runTodoStatus),
}

var todoRemoveCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	Short:   "Delete todos",
	Args:    cobra.MinimumNArgs(1),
	RunE:    withEnv(runTodoRemove),
}

var (
	todoAddDescription string
	todoAddPriority    string
	todoAddDue         string
	todoListStatus     string
)

func init() {
	rootCmd.AddCommand(todoCmd)
	todoCmd.AddCommand(todoListCmd, todoAddCmd, todoStatusCmd, todoRemoveCmd)

	todoAddCmd.Flags().StringVarP(&todoAddDescription, "description", "d", "", "Description")
	todoAddCmd.Flags().StringVarP(&todoAddPriority, "priority", "p", string(models.PriorityMedium), "Priority (high, medium, low)")
	todoAddCmd.Flags().StringVar(&todoAddDue, "due", "", "Due date (YYYY-MM-DD)")
	todoListCmd.Flags().StringVarP(&todoListStatus, "status", "s", "", "Only show todos with this status")
}

// resolveTodoID expands an id prefix against the fetched collection.
func resolveTodoID(list []models.Todo, prefix string) (string, error) {
	var match string
	for _, t := range list {
		if t.ID == prefix {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no todo with id %q", prefix)
	}
	return match, nil
}

func runTodoList(cmd *cobra.Command, args []string, e *env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	list, err := e.todos.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	if todoListStatus != "" {
		filtered := list[:0:0]
		for _, t := range list {
			if string(t.Status) == todoListStatus {
				filtered = append(filtered, t)
			}
		}
		list = filtered
	}
	fmt.Print(formatTodoTable(list, time.Now()))
	return nil
}

func runTodoAdd(cmd *cobra.Command, args []string, e *env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	in := models.TodoInput{
		Title:       strings.Join(args, " "),
		Description: todoAddDescription,
		Priority:    models.Priority(todoAddPriority),
	}
	if todoAddDue != "" {
		due, err := time.ParseInLocation("2006-01-02", todoAddDue, time.Local)
		if err != nil {
			return fmt.Errorf("due date: %w", err)
		}
		in.DueDate = &due
	}

	todo, err := e.todos.Create(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", successStyle.Render("Created"), shortID(todo.ID))
	return nil
}

func runTodoStatus(cmd *cobra.Command, args []string, e *env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	list, err := e.todos.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	id, err := resolveTodoID(list, args[0])
	if err != nil {
		return err
	}
	if err := e.todos.UpdateStatus(cmd.Context(), id, models.Status(args[1])); err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", shortID(id), statusStyles[models.Status(args[1])].Render(args[1]))
	return nil
}

func runTodoRemove(cmd *cobra.Command, args []string, e *env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	list, err := e.todos.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	for _, prefix := range args {
		id, err := resolveTodoID(list, prefix)
		if err != nil {
			return err
		}
		if err := e.todos.Remove(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Println("Deleted", shortID(id))
	}
	return nil
}
