package main

import (
	"fmt"
	"time"

	"github.com/openmined/docsync/internal/backends"
	"github.com/openmined/docsync/internal/journal"
	"github.com/openmined/docsync/internal/syncer"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on every local edit and poll remotes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bs, err := backends.OpenAll(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer backends.CloseAll(bs)

			localDirs := make(map[int64]string, len(bs))
			return a.withJournal(func(j *journal.Journal) error {
				s := syncer.New(j, a.cfg.StoreDir, a.cfg.SubfolderSupport)
				for _, b := range bs {
					localDirs[b.ID()] = s.LocalDir(b)
				}
				fmt.Fprintln(out(cmd), grayStyle.Render(fmt.Sprintf("watching %s, polling every %s", a.cfg.StoreDir, interval)))
				return s.Watch(ctx, bs, interval, func(r syncer.Report, err error) {
					if err != nil {
						fmt.Fprintln(out(cmd), idStyle.Render(fmt.Sprint(r.BackendID)), errorStyle.Render(err.Error()))
						return
					}
					if len(r.Actions) > 0 {
						printReport(cmd, r, localDirs[r.BackendID])
					}
				})
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", syncer.DefaultPollInterval, "remote poll interval")
	return cmd
}
