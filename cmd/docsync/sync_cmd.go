package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/backends"
	"github.com/openmined/docsync/internal/journal"
	"github.com/openmined/docsync/internal/repo"
	"github.com/openmined/docsync/internal/syncer"
	"github.com/openmined/docsync/internal/utils"
	"github.com/spf13/cobra"
)

func newMergeCmd(a *app) *cobra.Command {
	var revision string
	cmd := &cobra.Command{
		Use:   "merge <backend-id> <path> <local-file>",
		Short: "Three-way merge a local file into a git backend",
		Long: "Merges local-file against the document at path, using the last version the journal " +
			"recorded (or --revision) as common ancestor. local-file is replaced by the merged content, " +
			"which holds conflict markers when the merge did not resolve.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, local := args[1], args[2]
			return a.withTwoWay(ctx, args[0], func(b repo.TwoWaySyncBackend) error {
				known, err := a.knownVersion(b, path, revision)
				if err != nil {
					return err
				}
				res, err := b.SyncDocument(ctx, repo.JoinURI(b.RootURI(), path), known, local)
				if err != nil {
					return err
				}
				if err := utils.CopyFile(res.WorkingCopyPath, local); err != nil {
					return err
				}
				if res.Merged {
					fmt.Fprintln(out(cmd), okStyle.Render("merged"), path)
				} else {
					fmt.Fprintln(out(cmd), errorStyle.Render("conflict"), path, grayStyle.Render("(markers written to "+local+")"))
				}
				printDocument(out(cmd), res.Updated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "common ancestor revision")
	return cmd
}

func (a *app) knownVersion(b repo.SyncBackend, path, revision string) (*repo.VersionedDocument, error) {
	if revision != "" {
		return &repo.VersionedDocument{
			BackendID: b.ID(),
			Kind:      b.Kind(),
			RootURI:   b.RootURI(),
			URI:       repo.JoinURI(b.RootURI(), path),
			Path:      path,
			Revision:  revision,
		}, nil
	}

	var known *repo.VersionedDocument
	err := a.withJournal(func(j *journal.Journal) error {
		e, err := j.Get(b.ID(), path)
		if err != nil || e == nil {
			return err
		}
		known = &e.Doc
		return nil
	})
	return known, err
}

type branchReporter interface {
	CurrentBranch() (string, error)
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every backend and whether its remote moved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withJournal(func(j *journal.Journal) error {
				for _, bc := range a.cfg.Backends {
					known, err := j.Count(bc.ID)
					if err != nil {
						return err
					}
					err = a.withBackend(ctx, fmt.Sprint(bc.ID), func(b repo.SyncBackend) error {
						state := okStyle.Render("ready")
						if tw, ok := backends.TwoWay(b); ok {
							unchanged, err := tw.IsUnchanged(ctx)
							switch {
							case err != nil:
								state = errorStyle.Render(err.Error())
							case !unchanged:
								state = warnStyle.Render("remote changed")
							default:
								state = okStyle.Render("up to date")
							}
						}
						if br, ok := b.(branchReporter); ok {
							if branch, err := br.CurrentBranch(); err == nil {
								state += grayStyle.Render(" on " + branch)
							}
						}
						fmt.Fprintf(out(cmd), "%s  %-9s %s  %s  %s\n",
							idStyle.Render(fmt.Sprint(b.ID())), b.Kind(), b.RootURI(),
							grayStyle.Render(humanize.Comma(int64(known))+" known"), state)
						return nil
					})
					if err != nil {
						fmt.Fprintf(out(cmd), "%s  %-9s %s  %s\n", idStyle.Render(fmt.Sprint(bc.ID)), bc.Kind, bc.URL, errorStyle.Render(err.Error()))
					}
				}
				return nil
			})
		},
	}
}

func newPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push <backend-id>",
		Short: "Push local history a previous push left behind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTwoWay(cmd.Context(), args[0], func(b repo.TwoWaySyncBackend) error {
				b.PushIfHeadDiffersFromRemote(cmd.Context())
				fmt.Fprintln(out(cmd), okStyle.Render("push attempted"), grayStyle.Render("(see log for failures)"))
				return nil
			})
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync [backend-id...]",
		Short: "Run one sync pass over the given backends, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := *a.cfg
			if len(args) > 0 {
				cfg.Backends = nil
				for _, arg := range args {
					id, err := backendID(arg)
					if err != nil {
						return err
					}
					bc, ok := a.cfg.Backend(id)
					if !ok {
						return fmt.Errorf("backend %d is not configured", id)
					}
					cfg.Backends = append(cfg.Backends, bc)
				}
			}

			bs, err := backends.OpenAll(ctx, &cfg)
			if err != nil {
				return err
			}
			defer backends.CloseAll(bs)

			return a.withJournal(func(j *journal.Journal) error {
				s := syncer.New(j, cfg.StoreDir, cfg.SubfolderSupport)
				reports, syncErr := s.SyncAll(ctx, bs)
				if asJSON {
					if err := jsonEncode(out(cmd), reports); err != nil {
						return errors.Join(syncErr, err)
					}
					return syncErr
				}
				for i, r := range reports {
					printReport(cmd, r, s.LocalDir(bs[i]))
				}
				return syncErr
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print reports as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, r syncer.Report, localDir string) {
	w := out(cmd)
	head := fmt.Sprintf("%s  %s  %s", idStyle.Render(fmt.Sprint(r.BackendID)), r.Kind, grayStyle.Render(localDir))
	switch {
	case r.Skipped:
		fmt.Fprintln(w, head, okStyle.Render("unchanged"))
		return
	case len(r.Actions) == 0:
		fmt.Fprintln(w, head, okStyle.Render("in sync"))
		return
	}
	fmt.Fprintln(w, head, grayStyle.Render(r.Duration.Round(time.Millisecond).String()))
	for _, act := range r.Actions {
		op := okStyle.Render(string(act.Op))
		if act.Op == syncer.OpConflict {
			op = errorStyle.Render(string(act.Op))
		}
		line := fmt.Sprintf("  %-14s %s", op, act.Path)
		if act.ConflictCopy != "" {
			line += grayStyle.Render("  local copy: " + act.ConflictCopy)
		}
		fmt.Fprintln(w, line)
	}
	if n := r.Conflicts(); n > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("  %d %s need attention", n, pluralize(n, "document", "documents"))))
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
