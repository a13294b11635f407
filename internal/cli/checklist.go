package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/checklist"
)

// ChecklistView is the output of every checklist command.
type ChecklistView struct {
	Groups    []checklist.Group  `json:"groups"`
	Progress  checklist.Progress `json:"progress"`
	Status    checklist.Status   `json:"status"`
	SyncError string             `json:"sync_error,omitempty"`
}

func newChecklistView(c *checklist.Controller) ChecklistView {
	items := c.Items()
	v := ChecklistView{
		Groups:   checklist.GroupByCategory(items),
		Progress: checklist.ProgressOf(items),
		Status:   c.Status(),
	}
	if v.Groups == nil {
		v.Groups = []checklist.Group{}
	}
	if err := c.LastError(); err != nil {
		v.SyncError = err.Error()
	}
	return v
}

func writeChecklist(w io.Writer, v ChecklistView) error {
	fmt.Fprintf(w, "Go-bag checklist: %d/%d packed (%d%%)  [%s]\n",
		v.Progress.Checked, v.Progress.Total, v.Progress.Percent, v.Status)
	for _, g := range v.Groups {
		fmt.Fprintf(w, "\n%s\n", g.Category)
		for _, it := range g.Items {
			mark := " "
			if it.Checked {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %3d  %s\n", mark, it.ID, it.Item)
		}
	}
	if v.SyncError != "" {
		fmt.Fprintf(w, "\nSync error: %s\n", v.SyncError)
	}
	return nil
}

// checklistAction mutates the loaded checklist.
type checklistAction func(cmd *cobra.Command, c *checklist.Controller, args []string) error

func newChecklistCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklist",
		Short: "Manage the go-bag checklist",
		Long: `Show and edit the go-bag checklist.

With a token configured every command first replaces the local checklist
with the service copy, when the service holds one.

Edits are saved locally first. With a token configured they are pushed to
the service right away; a failed push leaves the checklist in sync_error
until "checklist push" succeeds.`,
	}

	sub := func(use, short string, args cobra.PositionalArgs, action checklistAction, push bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, argv []string) error {
				return runChecklist(opts, cmd, argv, action, push)
			},
		}
	}

	cmd.AddCommand(sub("show", "Show items grouped by category", cobra.NoArgs, nil, false))
	cmd.AddCommand(sub("toggle <id>", "Check or uncheck an item", cobra.ExactArgs(1),
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			_, err = c.Toggle(cmd.Context(), id)
			return err
		}, true))
	cmd.AddCommand(sub("add <category> <text>", "Add an item to a category", cobra.MinimumNArgs(2),
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			_, err := c.Add(cmd.Context(), args[0], strings.Join(args[1:], " "))
			return err
		}, true))
	cmd.AddCommand(sub("delete <id>", "Remove an item", cobra.ExactArgs(1),
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return c.Delete(cmd.Context(), id)
		}, true))
	cmd.AddCommand(sub("reset", "Restore the default checklist", cobra.NoArgs,
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			return c.Reset(cmd.Context())
		}, true))
	cmd.AddCommand(sub("uncheck", "Uncheck every item", cobra.NoArgs,
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			return c.UncheckAll(cmd.Context())
		}, true))
	cmd.AddCommand(sub("pull", "Replace the local checklist with the service copy", cobra.NoArgs,
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			return c.Pull(cmd.Context())
		}, false))
	cmd.AddCommand(sub("push", "Save the local checklist to the service now", cobra.NoArgs,
		func(cmd *cobra.Command, c *checklist.Controller, args []string) error {
			return c.Push(cmd.Context())
		}, false))

	return cmd
}

func runChecklist(opts *RootOptions, cmd *cobra.Command, args []string, action checklistAction, push bool) error {
	formatter := opts.formatter(cmd)
	a, err := openApp(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer a.Close()

	c, err := a.openChecklist(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load checklist", err)
	}

	unsubscribe := c.Subscribe(func(s checklist.Status) {
		a.log.Debug("Checklist status", zap.String("status", string(s)))
	})
	defer unsubscribe()

	if action != nil {
		if err := action(cmd, c, args); err != nil {
			code := ExitFailure
			if errors.Is(err, checklist.ErrNoRemote) || errors.Is(err, errBadItemID) {
				code = ExitCommandError
			}
			return formatter.Fail(code, cmd.Name()+" failed", err)
		}
	}
	if push && opts.Config.Token != "" {
		if err := c.Push(cmd.Context()); err != nil {
			// Saved locally; the status below carries the sync error.
			a.log.Warn("Checklist push failed", zap.Error(err))
		}
	}

	view := newChecklistView(c)
	return formatter.Emit(view, func(w io.Writer) error {
		return writeChecklist(w, view)
	})
}

var errBadItemID = errors.New("item id must be a positive integer")

func parseItemID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q: %w", s, errBadItemID)
	}
	return id, nil
}
