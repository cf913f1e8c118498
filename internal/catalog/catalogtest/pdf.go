// Package catalogtest builds small PDF files for tests.
package catalogtest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// helveticaWidths are the Helvetica AFM advances for codes 32..126.
var helveticaWidths = []int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

// PDF returns a minimal PDF with standard-14 Helvetica text, one page per
// argument and one text line per "\n"-separated line. The font carries no
// /Widths, as most generated catalogs using base fonts do.
func PDF(pages ...string) []byte {
	return build(false, contentStreams(pages))
}

// PDFWithWidths is PDF with an embedded-style font dictionary that lists
// glyph widths, so text positions advance per glyph.
func PDFWithWidths(pages ...string) []byte {
	return build(true, contentStreams(pages))
}

// PDFContent returns a PDF whose pages use the given raw content streams,
// with the widthless Helvetica available as /F1.
func PDFContent(streams ...string) []byte {
	return build(false, streams)
}

func contentStreams(pages []string) []string {
	out := make([]string, len(pages))
	for i, text := range pages {
		lines := strings.Split(text, "\n")
		shown := make([]string, len(lines))
		for j, ln := range lines {
			shown[j] = "(" + escape(ln) + ") Tj"
		}
		out[i] = fmt.Sprintf("BT /F1 18 Tf 22 TL 72 720 Td %s ET", strings.Join(shown, " T* "))
	}
	return out
}

func build(widths bool, pages []string) []byte {
	var objs []string
	n := len(pages)
	// 1 catalog, 2 pages, 3 font, then page/content pairs
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	font := "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"
	if widths {
		w := make([]string, len(helveticaWidths))
		for i, v := range helveticaWidths {
			w[i] = fmt.Sprint(v)
		}
		font = fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar %d /Widths [%s] >>",
			31+len(helveticaWidths), strings.Join(w, " "))
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		font,
	)
	for i, stream := range pages {
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// WriteFile writes PDF(pages...) into a temp dir and returns its path.
func WriteFile(t testing.TB, name string, pages ...string) string {
	t.Helper()
	return write(t, name, PDF(pages...))
}

// WriteFileWithWidths writes PDFWithWidths(pages...) like WriteFile.
func WriteFileWithWidths(t testing.TB, name string, pages ...string) string {
	t.Helper()
	return write(t, name, PDFWithWidths(pages...))
}

// WriteContent writes PDFContent(streams...) like WriteFile.
func WriteContent(t testing.TB, name string, streams ...string) string {
	t.Helper()
	return write(t, name, PDFContent(streams...))
}

func write(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
