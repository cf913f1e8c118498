package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/catalogdeck/internal/session"
)

const chatHelp = `Commands:
  /deck           export the last answer as a slide deck
  /load <pdf>     switch to another catalog
  /models         list available models
  /model <name>   use another model for the next questions
  /save <file>    write the conversation as Markdown
  /reset          forget the conversation and the catalog
  /help           show this help
  /quit           exit
Anything else is sent as a question about the catalog.`

func chatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <pdf>",
		Short: "Ask questions about a catalog interactively and export answers as decks",
		Args:  cobra.ExactArgs(1),
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
			fmt.Fprintln(out, "💬 Ask about the catalog. Type /help for commands.")
			return a.chatLoop(ctx, cmd.InOrStdin(), out, sess)
		},
	}
}

func loadCatalog(ctx context.Context, out io.Writer, sess *session.Session, path string) error {
	fmt.Fprintf(out, "📄 Loading %s...\n", path)
	c, err := sess.Load(ctx, path)
	if err != nil {
		return err
	}
	mode := "uploaded"
	if !c.Uploaded {
		mode = "text only"
	}
	fmt.Fprintf(out, "✅ %s: %d pages, %s\n", c.Name, c.Pages, mode)
	return nil
}

func (a *app) chatLoop(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			a.ask(ctx, out, sess, line)
			continue
		}

		name, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch name {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
		case "/deck":
			a.exportDeck(ctx, out, sess)
		case "/load":
			if arg == "" {
				fmt.Fprintln(out, "usage: /load <pdf>")
				continue
			}
			if err := loadCatalog(ctx, out, sess, arg); err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
			}
		case "/models":
			names, err := sess.Models(ctx)
			if err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
				continue
			}
			for _, n := range names {
				marker := " "
				if n == sess.Model {
					marker = "*"
				}
				fmt.Fprintf(out, " %s %s\n", marker, n)
			}
		case "/model":
			if err := sess.SetModel(arg); err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
				continue
			}
			fmt.Fprintf(out, "🔁 Using %s\n", sess.Model)
		case "/save":
			if err := saveTranscript(sess, a.cfg.OutDir, arg); err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
				continue
			}
			fmt.Fprintln(out, "💾 Conversation saved")
		case "/reset":
			sess.Reset(ctx)
			fmt.Fprintln(out, "🧹 Session cleared. Use /load <pdf> to continue.")
		default:
			fmt.Fprintf(out, "unknown command %s, type /help\n", name)
		}
	}
}

func (a *app) ask(ctx context.Context, out io.Writer, sess *session.Session, question string) {
	answer, err := sess.Ask(ctx, question)
	if err != nil {
		if errors.Is(err, session.ErrNoCatalog) {
			fmt.Fprintln(out, "❌ No catalog loaded. Use /load <pdf>.")
			return
		}
		fmt.Fprintf(out, "❌ %v\n", err)
		return
	}
	fmt.Fprintf(out, "\n%s\n\n", answer)
}

func (a *app) exportDeck(ctx context.Context, out io.Writer, sess *session.Session) {
	fmt.Fprintln(out, "🎨 Building slide deck...")
	before := a.summary.Snapshot()
	path, report, err := sess.ExportDeck(ctx, a.cfg.OutDir)
	if err != nil {
		fmt.Fprintf(out, "❌ %v\n", err)
		return
	}
	a.printReport(out, path, report, before)
}

func saveTranscript(sess *session.Session, dir, name string) error {
	if name == "" {
		name = "session-" + sess.ID.String()[:8] + ".md"
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := sess.WriteTranscript(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
