package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/agendify/pkg/model"
	"github.com/harrisonrobin/agendify/pkg/orgmode"
	"github.com/harrisonrobin/agendify/pkg/store"
)

var (
	taskTitle     string
	taskDesc      string
	taskDue       string
	taskPriority  string
	taskListDate  string
	taskPending   bool
	taskCompleted bool
	taskUndo      bool

	editTitle    string
	editDesc     string
	editDue      string
	editPriority string
	editClearDue bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage local tasks",
}

var tasksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a task",
	RunE:  runTasksAdd,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTasksList,
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDone,
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit [task-id]",
	Short: "Change a task's title, description, due time or priority",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksEdit,
}

var tasksRmCmd = &cobra.Command{
	Use:   "rm [task-id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksRm,
}

var tasksImportCmd = &cobra.Command{
	Use:   "import [file.org...]",
	Short: "Import TODO and DONE headlines from Org-mode files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTasksImport,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add [email]",
	Short: "Register a user without a calendar credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE:  runUsersList,
}

func init() {
	tasksCmd.AddCommand(tasksAddCmd, tasksListCmd, tasksDoneCmd, tasksEditCmd, tasksRmCmd, tasksImportCmd)
	usersCmd.AddCommand(usersAddCmd, usersListCmd)

	tasksAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	tasksAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	tasksAddCmd.Flags().StringVar(&taskDue, "due", "", `Due time as "YYYY-MM-DD HH:MM" or YYYY-MM-DD`)
	tasksAddCmd.Flags().StringVar(&taskPriority, "priority", "medium", "low, medium or high")
	tasksAddCmd.MarkFlagRequired("title")

	tasksListCmd.Flags().StringVar(&taskListDate, "date", "", "Only tasks due on this day (YYYY-MM-DD)")
	tasksListCmd.Flags().BoolVar(&taskPending, "pending", false, "Only pending tasks")
	tasksListCmd.Flags().BoolVar(&taskCompleted, "completed", false, "Only completed tasks")
	tasksListCmd.MarkFlagsMutuallyExclusive("pending", "completed")

	tasksDoneCmd.Flags().BoolVar(&taskUndo, "undo", false, "Mark the task pending again")

	tasksEditCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	tasksEditCmd.Flags().StringVar(&editDesc, "desc", "", "New description")
	tasksEditCmd.Flags().StringVar(&editDue, "due", "", `New due time as "YYYY-MM-DD HH:MM" or YYYY-MM-DD`)
	tasksEditCmd.Flags().BoolVar(&editClearDue, "clear-due", false, "Remove the due time")
	tasksEditCmd.Flags().StringVar(&editPriority, "priority", "", "low, medium or high")
	tasksEditCmd.MarkFlagsMutuallyExclusive("due", "clear-due")

	usersAddCmd.Flags().StringVar(&authName, "name", "", "Display name")
}

func runTasksAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	priority, err := model.ParsePriority(taskPriority)
	if err != nil {
		return err
	}
	t := model.Task{UserID: user.ID, Title: taskTitle, Description: taskDesc, Priority: priority}
	if taskDue != "" {
		due, err := parseDue(taskDue, cfg.Location())
		if err != nil {
			return err
		}
		t.DueAt = &due
	}

	created, err := a.tasks.Create(ctx, t)
	if err != nil {
		return err
	}
	fmt.Printf("Created task: %s\n", created.ID)
	return nil
}

func runTasksList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	var f store.Filter
	if taskListDate != "" {
		day, err := time.ParseInLocation(time.DateOnly, taskListDate, cfg.Location())
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		w := model.DayWindow(day, cfg.Location())
		f.Day = &w
	}
	switch {
	case taskPending:
		f.Completed = new(bool)
	case taskCompleted:
		done := true
		f.Completed = &done
	}

	tasks, err := a.tasks.Find(ctx, user.ID, f)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for _, t := range tasks {
		status := "pending"
		if t.Completed {
			status = "done"
		}
		due := "-"
		if t.HasDue() {
			due = t.DueAt.In(cfg.Location()).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, status, t.Priority, due, t.Title)
	}
	return w.Flush()
}

func runTasksDone(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	t, err := a.tasks.SetCompleted(ctx, user.ID, args[0], !taskUndo)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %s not found", args[0])
	}
	if err != nil {
		return err
	}
	state := "completed"
	if !t.Completed {
		state = "pending"
	}
	fmt.Printf("Task %q marked %s\n", t.Title, state)
	return nil
}

func runTasksEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	patch := store.TaskPatch{ClearDue: editClearDue}
	if flags.Changed("title") {
		patch.Title = &editTitle
	}
	if flags.Changed("desc") {
		patch.Description = &editDesc
	}
	if flags.Changed("priority") {
		p := model.Priority(editPriority)
		patch.Priority = &p
	}
	if flags.Changed("due") {
		due, err := parseDue(editDue, cfg.Location())
		if err != nil {
			return err
		}
		patch.DueAt = &due
	}

	t, err := a.tasks.Update(ctx, user.ID, args[0], patch)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %s not found", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("Task %q updated\n", t.Title)
	return nil
}

func runTasksRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	if err := a.tasks.Delete(ctx, user.ID, args[0]); errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %s not found", args[0])
	} else if err != nil {
		return err
	}
	fmt.Printf("Task %s deleted\n", args[0])
	return nil
}

func runTasksImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	entries, err := orgmode.ParseFiles(args, cfg.Location())
	if err != nil {
		return err
	}
	res, err := orgmode.Import(ctx, a.tasks, user.ID, entries)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d tasks, %d already present\n", res.Created, res.Skipped)
	return nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.users.Ensure(ctx, args[0], authName)
	if err != nil {
		return err
	}
	fmt.Printf("User %s registered with id %s\n", u.Email, u.ID)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.users.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Email, u.Name)
	}
	return w.Flush()
}

// parseDue accepts a date with or without a clock time. A bare date is due at midnight.
func parseDue(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, errors.New(`--due must be "YYYY-MM-DD HH:MM" or YYYY-MM-DD`)
	}
	return t, nil
}
