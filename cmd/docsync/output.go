package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/backends"
	"github.com/openmined/docsync/internal/journal"
	"github.com/openmined/docsync/internal/repo"
	"github.com/spf13/cobra"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	grayStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func printDocument(w io.Writer, d repo.VersionedDocument) {
	fmt.Fprintf(w, "%s  %s  %s\n",
		idStyle.Render(shortRevision(d.Revision)),
		d.Path,
		grayStyle.Render(humanize.Time(d.ModTime())),
	)
}

// shortRevision abbreviates commit ids the way git log --oneline does.
func shortRevision(rev string) string {
	if _, err := strconv.ParseInt(rev, 10, 64); err == nil {
		return rev
	}
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

func backendID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid backend id %q", s)
	}
	return id, nil
}

// withBackend opens the configured backend id for the duration of fn.
func (a *app) withBackend(ctx context.Context, arg string, fn func(repo.SyncBackend) error) error {
	id, err := backendID(arg)
	if err != nil {
		return err
	}
	bc, ok := a.cfg.Backend(id)
	if !ok {
		return fmt.Errorf("backend %d is not configured", id)
	}
	b, err := backends.Open(ctx, bc, repo.Settings{SubfolderSupport: a.cfg.SubfolderSupport})
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

// withTwoWay is withBackend for commands that need history.
func (a *app) withTwoWay(ctx context.Context, arg string, fn func(repo.TwoWaySyncBackend) error) error {
	return a.withBackend(ctx, arg, func(b repo.SyncBackend) error {
		tw, ok := backends.TwoWay(b)
		if !ok {
			return fmt.Errorf("backend %d (%s) has no history", b.ID(), b.Kind())
		}
		return fn(tw)
	})
}

func (a *app) withJournal(fn func(*journal.Journal) error) error {
	j, err := journal.Open(a.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()
	return fn(j)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
