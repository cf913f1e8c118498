package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseSlidePlan decodes model output into a SlidePlan, tolerating code
// fences and prose around the JSON object.
func ParseSlidePlan(raw string) (SlidePlan, error) {
	var plan SlidePlan
	js := stripCodeFences(raw)
	if err := json.Unmarshal([]byte(js), &plan); err != nil {
		s := findFirstJSON(js)
		if s == "" {
			return plan, fmt.Errorf("failed to parse slide plan - no JSON found: %w", err)
		}
		if err2 := json.Unmarshal([]byte(s), &plan); err2 != nil {
			return plan, fmt.Errorf("failed to parse slide plan as JSON: %w (original error: %v)", err2, err)
		}
	}
	plan = plan.normalized()
	if len(plan.Slides) == 0 {
		return plan, ErrEmptyPlan
	}
	return plan, nil
}

func (p SlidePlan) normalized() SlidePlan {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		p.Title = "Portfolio Analysis"
	}
	var slides []SlideSpec
	for _, s := range p.Slides {
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			s.Title = "Slide"
		}
		var points []string
		for _, pt := range s.Points {
			pt = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(pt), "•-* "))
			if pt != "" {
				points = append(points, pt)
			}
		}
		s.Points = points
		s.ImageDescription = strings.TrimSpace(s.ImageDescription)
		slides = append(slides, s)
	}
	p.Slides = slides
	return p
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		firstNewline := strings.Index(s, "\n")
		if firstNewline != -1 {
			s = s[firstNewline+1:]
		}
	}

	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	return s
}

func findFirstJSON(s string) string {
	// naive scan for the first balanced {...}; braces inside strings are
	// tracked so titles like "Q{4}" do not end the object early
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
