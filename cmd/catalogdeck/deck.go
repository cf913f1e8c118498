package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/catalogdeck/internal/session"
)

func deckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deck <analysis.txt|->",
		Short: "Build a slide deck from a saved analysis text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if args[0] == "-" {
				b, err = io.ReadAll(cmd.InOrStdin())
			} else {
				b, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			analysis := strings.TrimSpace(string(b))
			if analysis == "" {
				return session.ErrNothingToExport
			}

			ctx := cmd.Context()
			assistant, gc, err := a.newAssistant(ctx, a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "🎨 Building slide deck...")
			before := a.summary.Snapshot()
			path, report, err := session.ExportAnalysis(ctx, assistant, a.builder(gc), analysis, a.cfg.Language, a.cfg.OutDir)
			if err != nil {
				return err
			}
			a.printReport(out, path, report, before)
			return nil
		},
	}
}
