package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Getenv)
	if err := execute(ctx, a, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogdeck",
		Short:         "Chat with a product catalog PDF and export the analysis as an illustrated slide deck",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.flags.configPath, "config", "c", "", "YAML config file (default: built-in defaults)")
	f.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")
	f.BoolVar(&a.flags.logJSON, "log-json", false, "log as JSON instead of text")
	f.StringVarP(&a.flags.model, "model", "m", "", "Gemini model for answers and slide plans")
	f.StringVarP(&a.flags.language, "language", "l", "", "answer and slide language")
	f.StringVarP(&a.flags.outDir, "out", "o", "", "output directory for decks and transcripts")
	f.IntVar(&a.flags.concurrency, "concurrency", 0, "slides whose images are generated in parallel")
	f.BoolVar(&a.flags.noImages, "no-images", false, "skip image generation and use placeholders")
	f.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :2112")

	root.AddCommand(chatCmd(a), askCmd(a), deckCmd(a), imageCmd(a), modelsCmd(a))
	return root
}
