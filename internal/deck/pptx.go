package deck

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

// Geometry in EMU, 914400 per inch, on a 10in x 7.5in slide.
const (
	emuPerInch = 914400

	slideWidth  = 10 * emuPerInch
	slideHeight = 15 * emuPerInch / 2

	titleColor       = "003366"
	placeholderFill  = "F0F0F0"
	placeholderLine  = "B4B4B4"
	placeholderColor = "787878"

	PlaceholderText = "Image unavailable"
	TitleSubtitle   = "Generated automatically with AI"
)

func inches(x float64) int64 { return int64(x * emuPerInch) }

var (
	titleBox    = rect{X: inches(0.5), Y: inches(0.4), CX: inches(9), CY: inches(1)}
	bodyBox     = rect{X: inches(0.5), Y: inches(1.5), CX: inches(4.5), CY: inches(5)}
	imageBox    = rect{X: inches(5.5), Y: inches(1.8), CX: inches(4), CY: inches(3.5)}
	coverBox    = rect{X: inches(0.75), Y: inches(2.2), CX: inches(8.5), CY: inches(1.6)}
	subtitleBox = rect{X: inches(1.5), Y: inches(4), CX: inches(7), CY: inches(1.2)}
)

type paragraph struct {
	Text       string
	Size       int // hundredths of a point
	Bold       bool
	Color      string
	Center     bool
	SpaceAfter int // hundredths of a point
}

type textBox struct {
	ID         int
	Name       string
	Rect       rect
	Center     bool
	Paragraphs []paragraph
}

type picture struct {
	ID          int
	RelID       string
	File        string
	Description string
	Rect        rect
}

type placeholderShape struct {
	ID        int
	Rect      rect
	Fill      string
	Line      string
	TextColor string
	Text      string
	Size      int
}

type slidePart struct {
	Number      int
	ID          int
	RelID       string
	Boxes       []textBox
	Picture     *picture
	Placeholder *placeholderShape
	media       *media
}

type mediaType struct {
	Ext         string
	ContentType string
}

type packageModel struct {
	Title          string
	Created        string
	Slides         []slidePart
	MediaTypes     []mediaType
	SlideWidth     int64
	SlideHeight    int64
	PresPropsRel   string
	ViewPropsRel   string
	ThemeRel       string
	TableStylesRel string
}

var templates = template.Must(template.New("pptx").Funcs(template.FuncMap{"xml": xmlText}).Parse(`{{define "content-types"}}` + contentTypesTmpl + `{{end}}` +
	`{{define "root-rels"}}` + rootRelsTmpl + `{{end}}` +
	`{{define "core"}}` + coreTmpl + `{{end}}` +
	`{{define "app"}}` + appTmpl + `{{end}}` +
	`{{define "presentation"}}` + presentationTmpl + `{{end}}` +
	`{{define "presentation-rels"}}` + presentationRelsTmpl + `{{end}}` +
	`{{define "slide-rels"}}` + slideRelsTmpl + `{{end}}`))

var slideTemplate = template.Must(template.New("slide").Funcs(template.FuncMap{"xml": xmlText}).Parse(slideTmpl))

// xmlText escapes s for element and attribute content and drops characters
// XML 1.0 cannot carry.
func xmlText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, s)
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func coverSlide(title string) slidePart {
	return slidePart{Boxes: []textBox{
		{ID: 2, Name: "Title", Rect: coverBox, Center: true, Paragraphs: []paragraph{
			{Text: title, Size: 4000, Bold: true, Color: titleColor, Center: true},
		}},
		{ID: 3, Name: "Subtitle", Rect: subtitleBox, Center: true, Paragraphs: []paragraph{
			{Text: TitleSubtitle, Size: 2000, Color: placeholderColor, Center: true},
		}},
	}}
}

// contentSlide lays out title, bullets and either m or a placeholder.
func contentSlide(s Slide, m *media) slidePart {
	part := slidePart{Boxes: []textBox{
		{ID: 2, Name: "Title", Rect: titleBox, Paragraphs: []paragraph{
			{Text: s.Title, Size: 3200, Bold: true, Color: titleColor},
		}},
	}}
	body := textBox{ID: 3, Name: "Content", Rect: bodyBox}
	for _, pt := range s.Points {
		body.Paragraphs = append(body.Paragraphs, paragraph{Text: "• " + pt, Size: 1800, SpaceAfter: 1400})
	}
	part.Boxes = append(part.Boxes, body)

	if m != nil {
		part.media = m
		part.Picture = &picture{ID: 4, RelID: "rId2", Description: s.ImageDescription, Rect: fit(m.width, m.height, imageBox)}
		return part
	}
	part.Placeholder = &placeholderShape{
		ID:        4,
		Rect:      imageBox,
		Fill:      placeholderFill,
		Line:      placeholderLine,
		TextColor: placeholderColor,
		Text:      PlaceholderText,
		Size:      1600,
	}
	return part
}

// writePackage serializes the slides as a PresentationML package.
func writePackage(w io.Writer, title string, created time.Time, slides []slidePart) error {
	model := packageModel{
		Title:       title,
		Created:     created.UTC().Format(time.RFC3339),
		SlideWidth:  slideWidth,
		SlideHeight: slideHeight,
	}
	seenTypes := map[string]bool{}
	mediaN := 0
	for i := range slides {
		s := &slides[i]
		s.Number = i + 1
		s.ID = 256 + i
		s.RelID = fmt.Sprintf("rId%d", i+2)
		if s.media != nil {
			mediaN++
			s.Picture.File = fmt.Sprintf("image%d.%s", mediaN, s.media.ext)
			if !seenTypes[s.media.ext] {
				seenTypes[s.media.ext] = true
				model.MediaTypes = append(model.MediaTypes, mediaType{Ext: s.media.ext, ContentType: s.media.contentType})
			}
		}
		model.Slides = append(model.Slides, *s)
	}
	next := len(slides) + 2
	model.PresPropsRel = fmt.Sprintf("rId%d", next)
	model.ViewPropsRel = fmt.Sprintf("rId%d", next+1)
	model.ThemeRel = fmt.Sprintf("rId%d", next+2)
	model.TableStylesRel = fmt.Sprintf("rId%d", next+3)

	zw := zip.NewWriter(w)
	add := func(name string, body []byte) error {
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = f.Write(body)
		return err
	}
	render := func(name, tmpl string, data any) error {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, tmpl, data); err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		return add(name, buf.Bytes())
	}

	// [Content_Types].xml goes first so readers that stream the zip find it.
	if err := render("[Content_Types].xml", "content-types", model); err != nil {
		return err
	}
	if err := render("_rels/.rels", "root-rels", model); err != nil {
		return err
	}
	if err := render("docProps/core.xml", "core", model); err != nil {
		return err
	}
	if err := render("docProps/app.xml", "app", model); err != nil {
		return err
	}
	if err := render("ppt/presentation.xml", "presentation", model); err != nil {
		return err
	}
	if err := render("ppt/_rels/presentation.xml.rels", "presentation-rels", model); err != nil {
		return err
	}
	static := []struct {
		name string
		body string
	}{
		{"ppt/presProps.xml", presPropsXML},
		{"ppt/viewProps.xml", viewPropsXML},
		{"ppt/tableStyles.xml", tableStylesXML},
		{"ppt/theme/theme1.xml", themeXML},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRelsXML},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayoutXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRelsXML},
	}
	for _, s := range static {
		if err := add(s.name, []byte(s.body)); err != nil {
			return err
		}
	}

	for _, s := range model.Slides {
		var buf bytes.Buffer
		if err := slideTemplate.Execute(&buf, s); err != nil {
			return fmt.Errorf("render slide %d: %w", s.Number, err)
		}
		if err := add(fmt.Sprintf("ppt/slides/slide%d.xml", s.Number), buf.Bytes()); err != nil {
			return err
		}
		if err := render(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", s.Number), "slide-rels", s); err != nil {
			return err
		}
		if s.media != nil {
			if err := add("ppt/media/"+s.Picture.File, s.media.data); err != nil {
				return err
			}
		}
	}
	return zw.Close()
}
