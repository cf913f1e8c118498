package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thywilljoshua/catalogdeck/internal/ai"
	"github.com/thywilljoshua/catalogdeck/internal/catalog/catalogtest"
)

type fakeUploader struct {
	err   error
	calls int
	name  string
}

func (f *fakeUploader) Upload(ctx context.Context, path, displayName string) (*ai.Document, error) {
	f.calls++
	f.name = displayName
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Document{Name: "files/1", DisplayName: displayName, URI: "https://files.example/1", MIMEType: "application/pdf"}, nil
}

func TestIngestUploads(t *testing.T) {
	path := catalogtest.WriteFile(t, "catalog.pdf", "Red pen", "Luxury watch")
	up := &fakeUploader{}

	c, err := Ingest(context.Background(), path, up, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)
	assert.Equal(t, "catalog.pdf", up.name)
	assert.True(t, c.Uploaded)
	assert.Equal(t, 2, c.Pages)
	assert.Equal(t, "https://files.example/1", c.Document.URI)
	assert.Contains(t, c.Text, "Red pen")
	assert.Contains(t, c.Text, "--- Page 2 ---")
}

func TestIngestFallsBackToText(t *testing.T) {
	path := catalogtest.WriteFile(t, "catalog.pdf", "Luxury watch collection")
	c, err := Ingest(context.Background(), path, &fakeUploader{err: errors.New("quota")}, nil)
	require.NoError(t, err)
	assert.False(t, c.Uploaded)
	require.NotNil(t, c.Document)
	assert.Empty(t, c.Document.URI)
	assert.Contains(t, c.Document.Text, "Luxury watch collection")
}

func TestIngestNoUploader(t *testing.T) {
	path := catalogtest.WriteFile(t, "catalog.PDF", "Notebook")
	c, err := Ingest(context.Background(), path, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, c.Document.Text, "Notebook")
}

func TestIngestRejects(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0o644))
		return p
	}

	_, err := Ingest(context.Background(), write("catalog.txt", []byte("%PDF-1.4")), nil, nil)
	assert.ErrorIs(t, err, ErrNotPDF)

	_, err = Ingest(context.Background(), write("empty.pdf", nil), nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Ingest(context.Background(), write("fake.pdf", []byte("hello world")), nil, nil)
	assert.ErrorIs(t, err, ErrNotPDF)

	big := make([]byte, MaxSize+1)
	copy(big, "%PDF-1.4")
	_, err = Ingest(context.Background(), write("big.pdf", big), nil, nil)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Ingest(context.Background(), filepath.Join(dir, "missing.pdf"), nil, nil)
	assert.Error(t, err)
}

func TestIngestCorruptPDFWithFailedUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\ngarbage without xref"), 0o644))

	_, err := Ingest(context.Background(), path, &fakeUploader{err: errors.New("down")}, nil)
	assert.Error(t, err)

	c, err := Ingest(context.Background(), path, &fakeUploader{}, nil)
	require.NoError(t, err)
	assert.True(t, c.Uploaded)
	assert.Equal(t, 0, c.Pages)
}

func TestJoinPagesTruncates(t *testing.T) {
	long := strings.Repeat("é", MaxTextRunes)
	out := joinPages([]string{long, "second"})
	assert.Equal(t, MaxTextRunes, len([]rune(out)))
	assert.NotContains(t, out, "second")
}

func TestExtractTextPerPage(t *testing.T) {
	layouts := []struct {
		name  string
		write func(t testing.TB, name string, pages ...string) string
	}{
		{"base font without widths", catalogtest.WriteFile},
		{"font with widths", catalogtest.WriteFileWithWidths},
	}
	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			path := l.write(t, "c.pdf", "Hello (catalog)", "", "Luxury watch collection\nRed pen  on desk")
			pages, err := extractTextPerPage(path)
			require.NoError(t, err)
			require.Len(t, pages, 3)
			assert.Equal(t, "Hello (catalog)", pages[0])
			assert.Equal(t, "", pages[1])
			assert.Equal(t, "Luxury watch collection\nRed pen on desk", pages[2])
		})
	}
}

func TestExtractTextFromOperators(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"TJ word gap", "BT /F1 12 Tf 72 700 Td [(Gold)-250(watch)] TJ ET", "Gold watch"},
		{"TJ kerning", "BT /F1 12 Tf 72 700 Td [(Wa)-40(tch)] TJ ET", "Watch"},
		{"Tm same line", "BT /F1 12 Tf 1 0 0 1 72 700 Tm (Red) Tj 1 0 0 1 110 700 Tm (pen) Tj ET", "Red pen"},
		{"Tm new line", "BT /F1 12 Tf 1 0 0 1 72 700 Tm (Red pen) Tj 1 0 0 1 72 680 Tm (Blue pen) Tj ET", "Red pen\nBlue pen"},
		{"quote operator", "BT /F1 12 Tf 14 TL 72 700 Td (first) Tj (second) ' ET", "first\nsecond"},
		{"separate blocks", "BT /F1 12 Tf 72 700 Td (Price:) Tj ET BT /F1 12 Tf 72 680 Td (12 EUR) Tj ET", "Price:\n12 EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := extractTextPerPage(catalogtest.WriteContent(t, "c.pdf", tt.stream))
			require.NoError(t, err)
			require.Len(t, pages, 1)
			assert.Equal(t, tt.want, pages[0])
		})
	}
}
