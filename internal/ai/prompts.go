package ai

import (
	"fmt"
	"strings"
)

const answerInstructions = `You are a marketing and product design expert reviewing a product catalog.

INSTRUCTIONS:
- When relevant, comment on the design of the products shown in the catalog images.
- Compare the catalog with the market trends found on the internet.
- Be concrete: name products, pages or sections when you refer to them.
- Answer in %s.`

const slidePlanPrompt = `Turn the analysis below into a JSON structure for a PowerPoint presentation of 5 to 8 slides.
Write titles and points in %s. For every slide add an "image_description": a short visual description in English of a photo that would illustrate the slide.

ANALYSIS:
%s

MANDATORY JSON FORMAT:
{
  "presentation_title": "Short title",
  "slides": [
    {"title": "Slide title", "points": ["Idea 1", "Idea 2"], "image_description": "minimalist product photo of ..."}
  ]
}

Return ONLY the JSON object.`

func languageOrDefault(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "English"
	}
	return lang
}

func systemPrompt(language string) string {
	return fmt.Sprintf(answerInstructions, languageOrDefault(language))
}

// answerPrompt builds the text part of the question turn. The catalog
// itself is attached separately when it was uploaded.
func answerPrompt(req AnswerRequest) string {
	var b strings.Builder
	switch {
	case req.Document != nil && req.Document.URI != "":
		b.WriteString("CATALOG CONTEXT: analyze the attached PDF (text and images).\n")
	case req.Document != nil && req.Document.Text != "":
		b.WriteString("CATALOG CONTEXT (text only, images unavailable):\n")
		b.WriteString(req.Document.Text)
		b.WriteString("\n")
	}
	webContext := strings.TrimSpace(req.WebContext)
	if webContext == "" {
		webContext = "No internet data available."
	}
	fmt.Fprintf(&b, "INTERNET CONTEXT:\n%s\n", webContext)
	fmt.Fprintf(&b, "QUESTION: %s", strings.TrimSpace(req.Question))
	return b.String()
}

func slidePrompt(analysis, language string) string {
	return fmt.Sprintf(slidePlanPrompt, languageOrDefault(language), strings.TrimSpace(analysis))
}
