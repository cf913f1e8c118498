package catalog

import (
	"fmt"
	"math"
	"os"
	"strings"

	rpdf "rsc.io/pdf"
)

// extractTextPerPage returns the text of every page. rsc.io/pdf panics on
// some malformed inputs, so a panic is reported as an error together with
// the pages read so far.
func extractTextPerPage(path string) (pages []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: %v", r)
		}
	}()

	doc, err := rpdf.NewReader(f, info.Size())
	if err != nil {
		return nil, err
	}
	n := doc.NumPage()
	for i := 1; i <= n; i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		runs := p.Content().Text
		if hasGlyphWidths(runs) {
			pages = append(pages, pageText(runs))
		} else {
			pages = append(pages, streamText(p))
		}
	}
	return pages, nil
}

// hasGlyphWidths reports whether run positions can be trusted for word
// breaks. Fonts without /Widths (the standard 14 usually) report W=0 and
// never advance X, so every glyph lands on the same spot.
func hasGlyphWidths(runs []rpdf.Text) bool {
	if len(runs) == 0 {
		return false
	}
	for _, t := range runs {
		if t.W <= 0 {
			return false
		}
	}
	return true
}

// pageText joins positioned glyph runs into lines, top to bottom. Space
// glyphs are not reported, so word breaks come from horizontal gaps.
func pageText(runs []rpdf.Text) string {
	var b strings.Builder
	var prev *rpdf.Text
	for i := range runs {
		t := &runs[i]
		if prev != nil {
			size := math.Max(t.FontSize, 1)
			switch {
			case math.Abs(t.Y-prev.Y) > size/2:
				b.WriteByte('\n')
			case t.X-(prev.X+prev.W) > size*0.15:
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.S)
		prev = t
	}
	return normalizeLines(b.String())
}

// streamText reads the text-showing operators of the content stream
// directly, keeping the spaces inside strings. Line breaks follow the
// line-moving operators; large TJ adjustments count as word breaks.
func streamText(p rpdf.Page) string {
	var (
		b     strings.Builder
		enc   rpdf.TextEncoding
		lastY float64
		haveY bool
	)
	show := func(raw string) {
		if enc == nil {
			b.WriteString(raw)
			return
		}
		b.WriteString(enc.Decode(raw))
	}
	moveTo := func(y float64) {
		if haveY && y == lastY {
			b.WriteByte(' ')
		} else {
			b.WriteByte('\n')
		}
		lastY, haveY = y, true
	}

	rpdf.Interpret(p.V.Key("Contents"), func(stk *rpdf.Stack, op string) {
		n := stk.Len()
		args := make([]rpdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "BT":
			lastY, haveY = 0, false
		case "ET":
			b.WriteByte(' ')
		case "Tf":
			if n == 2 {
				enc = p.Font(args[0].Name()).Encoder()
			}
		case "Td", "TD":
			if n != 2 {
				return
			}
			if dy := args[1].Float64(); dy != 0 {
				moveTo(lastY + dy)
			} else {
				b.WriteByte(' ')
			}
		case "Tm":
			if n == 6 {
				moveTo(args[5].Float64())
			}
		case "T*":
			b.WriteByte('\n')
		case "'", "\"":
			b.WriteByte('\n')
			if n > 0 {
				show(args[n-1].RawString())
			}
		case "Tj":
			if n == 1 {
				show(args[0].RawString())
			}
		case "TJ":
			if n != 1 {
				return
			}
			v := args[0]
			for i := 0; i < v.Len(); i++ {
				x := v.Index(i)
				if x.Kind() == rpdf.String {
					show(x.RawString())
				} else if x.Float64() < -200 {
					b.WriteByte(' ')
				}
			}
		}
	})
	return normalizeLines(b.String())
}

// normalizeLines collapses runs of whitespace and drops empty lines.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
