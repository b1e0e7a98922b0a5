package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Path != "" {
				fmt.Fprintln(out(cmd), grayStyle.Render("# "+a.cfg.Path))
			}
			enc := yaml.NewEncoder(out(cmd))
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg.Masked()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
