package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/thywilljoshua/catalogdeck/internal/ai"
)

const (
	MaxSize      = 20 << 20
	MaxTextRunes = 100_000
)

var (
	ErrNotPDF   = errors.New("catalog: file is not a PDF")
	ErrTooLarge = errors.New("catalog: file exceeds 20 MiB")
	ErrEmpty    = errors.New("catalog: file is empty")
)

// Uploader sends the catalog to the model provider for multimodal use.
type Uploader interface {
	Upload(ctx context.Context, path, displayName string) (*ai.Document, error)
}

type Catalog struct {
	Path     string
	Name     string
	Size     int64
	Pages    int
	Text     string
	Document *ai.Document
	// Uploaded is false when the catalog is only available as text.
	Uploaded bool
}

// Ingest validates a PDF catalog, extracts its text and uploads it. A
// failed upload degrades to a text-only document when text was found.
func Ingest(ctx context.Context, path string, up Uploader, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	switch {
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotPDF, path)
	case info.Size() == 0:
		return nil, ErrEmpty
	case info.Size() > MaxSize:
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}
	if err := checkMagic(path); err != nil {
		return nil, err
	}

	c := &Catalog{Path: path, Name: filepath.Base(path), Size: info.Size()}

	pages, err := extractTextPerPage(path)
	if err != nil {
		logger.Warn("text extraction failed", "file", c.Name, "err", err)
	}
	c.Pages = len(pages)
	c.Text = joinPages(pages)

	if up != nil {
		doc, err := up.Upload(ctx, path, c.Name)
		if err == nil {
			c.Document = doc
			c.Uploaded = true
			logger.Info("catalog uploaded", "file", c.Name, "pages", c.Pages, "uri", doc.URI)
			return c, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.Text == "" {
			return nil, fmt.Errorf("catalog: upload failed and no text could be extracted: %w", err)
		}
		logger.Warn("upload failed, continuing with extracted text only", "file", c.Name, "err", err)
	} else if c.Text == "" {
		return nil, fmt.Errorf("catalog: no text could be extracted from %s", c.Name)
	}

	c.Document = &ai.Document{DisplayName: c.Name, MIMEType: "application/pdf", Text: c.Text}
	return c, nil
}

func checkMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("catalog: %w", err)
	}
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return fmt.Errorf("%w: missing %%PDF header", ErrNotPDF)
	}
	return nil
}

func joinPages(pages []string) string {
	var b strings.Builder
	runes := 0
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunk := fmt.Sprintf("--- Page %d ---\n%s\n", i+1, p)
		n := len([]rune(chunk))
		if runes+n > MaxTextRunes {
			r := []rune(chunk)
			b.WriteString(string(r[:MaxTextRunes-runes]))
			break
		}
		b.WriteString(chunk)
		runes += n
	}
	return strings.TrimSpace(b.String())
}
