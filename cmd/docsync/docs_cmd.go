package main

import (
	"fmt"

	"github.com/openmined/docsync/internal/repo"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <backend-id>",
		Short: "List the documents of a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), args[0], func(b repo.SyncBackend) error {
				docs, err := b.ListDocuments(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return jsonEncode(out(cmd), docs)
				}
				for _, d := range docs {
					printDocument(out(cmd), d)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <backend-id> <path> <destination>",
		Short: "Copy a document out of a backend",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), args[0], func(b repo.SyncBackend) error {
				doc, err := b.RetrieveDocument(cmd.Context(), args[1], args[2])
				if err != nil {
					return err
				}
				printDocument(out(cmd), doc)
				return nil
			})
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <backend-id> <source> <path>",
		Short: "Store a file as a document, overwriting",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), args[0], func(b repo.SyncBackend) error {
				doc, err := b.StoreDocument(cmd.Context(), args[1], args[2])
				if err != nil {
					return err
				}
				printDocument(out(cmd), doc)
				return nil
			})
		},
	}
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <backend-id> <path> <new-name>",
		Short: "Rename a document; the new name has no extension",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), args[0], func(b repo.SyncBackend) error {
				doc, err := b.RenameDocument(cmd.Context(), repo.JoinURI(b.RootURI(), args[1]), args[2])
				if err != nil {
					return err
				}
				if doc == nil {
					fmt.Fprintln(out(cmd), warnStyle.Render("nothing to rename"))
					return nil
				}
				printDocument(out(cmd), *doc)
				return nil
			})
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <backend-id> <path>",
		Aliases: []string{"delete"},
		Short:   "Delete a document",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), args[0], func(b repo.SyncBackend) error {
				if err := b.Delete(cmd.Context(), repo.JoinURI(b.RootURI(), args[1])); err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), okStyle.Render("deleted"), args[1])
				return nil
			})
		},
	}
}
