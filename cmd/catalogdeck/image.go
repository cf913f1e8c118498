package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/catalogdeck/internal/imagegen"
)

func imageCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "image <description...>",
		Short: "Generate one image through the provider chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Images.Disabled {
				return errors.New("image generation is disabled")
			}
			ctx := cmd.Context()
			// The Gemini image provider is optional here; the HTTP
			// providers work without a Google key.
			var acq *imagegen.Acquirer
			if a.secrets.RequireGoogle() == nil {
				_, gc, err := a.newAssistant(ctx, a)
				if err != nil {
					return err
				}
				acq = a.acquirer(gc)
			} else {
				acq = a.acquirer(nil)
			}
			if acq == nil {
				return imagegen.ErrNoProviders
			}

			out := cmd.OutOrStdout()
			res := acq.Acquire(ctx, imagegen.Request{Description: strings.Join(args, " ")})
			if !res.OK() {
				if res.Err != nil {
					return fmt.Errorf("no image (%s): %w", res.Reason, res.Err)
				}
				return fmt.Errorf("no image (%s)", res.Reason)
			}
			if file == "" {
				file = "image" + extensionFor(res.ContentType)
			}
			if err := os.WriteFile(file, res.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ %s from %s after %d attempt(s), seed %d\n", file, res.Provider, res.Attempts, res.Seed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "where to write the image (default: image.<ext>)")
	return cmd
}

func extensionFor(contentType string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}
