package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func askCmd(a *app) *cobra.Command {
	var withDeck bool

	cmd := &cobra.Command{
		Use:   "ask <pdf> <question...>",
		Short: "Answer one question about a catalog",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.newSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Reset(context.WithoutCancel(ctx))

			out := cmd.OutOrStdout()
			if err := loadCatalog(ctx, out, sess, args[0]); err != nil {
				return err
			}
			answer, err := sess.Ask(ctx, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n\n", answer)
			if !withDeck {
				return nil
			}
			fmt.Fprintln(out, "🎨 Building slide deck...")
			before := a.summary.Snapshot()
			path, report, err := sess.ExportDeck(ctx, a.cfg.OutDir)
			if err != nil {
				return err
			}
			a.printReport(out, path, report, before)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDeck, "deck", false, "also export the answer as a slide deck")
	return cmd
}
