package cv

import (
	"context"
	"regexp"
	"strings"

	"vitae/internal/pipeline"
	"vitae/internal/services"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9()\s.-]{6,}[0-9]`)
	rangePattern = regexp.MustCompile(`(?i)\b((?:19|20)\d{2})\s*[-–]\s*((?:19|20)\d{2}|present)\b`)
	yearPattern  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// section headings recognized in a document, normalized to lowercase with any
// leading markdown markers and trailing colons stripped.
var sectionNames = map[string]string{
	"summary":    "summary",
	"profile":    "summary",
	"about":      "summary",
	"skills":     "skills",
	"experience": "experience",
	"employment": "experience",
	"work":       "experience",
	"education":  "education",
}

// HeuristicParser builds a structured record from plain CV text using
// section headings and field patterns. It never guesses: fields it cannot
// find stay zero and the scorer decides what that costs.
type HeuristicParser struct{}

var _ pipeline.Parser = (*HeuristicParser)(nil)

// NewHeuristicParser constructs the parser.
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

// Parse extracts the record fields from the document text.
func (p *HeuristicParser) Parse(ctx context.Context, text string) (*pipeline.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, services.Wrap(services.ErrPermanent, pipeline.OpParse, "no textual content", nil)
	}

	sections := splitSections(text)
	record := &pipeline.Record{Email: emailPattern.FindString(text)}
	// Year ranges in the experience section also match the phone pattern,
	// so phone numbers are only taken from the header.
	record.Phone = strings.TrimSpace(phonePattern.FindString(strings.Join(sections["header"], "\n")))
	record.Name = headerName(sections["header"])
	record.Summary = strings.TrimSpace(strings.Join(sections["summary"], " "))
	record.Skills = parseSkills(sections["skills"])
	record.Experience = parseExperience(sections["experience"])
	record.Education = parseEducation(sections["education"])
	return record, nil
}

// splitSections groups lines under the most recent recognized heading.
// Everything before the first heading lands in "header".
func splitSections(text string) map[string][]string {
	sections := make(map[string][]string)
	current := "header"
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, ok := headingFor(trimmed); ok {
			current = name
			continue
		}
		sections[current] = append(sections[current], trimmed)
	}
	return sections
}

func headingFor(line string) (string, bool) {
	candidate := strings.TrimLeft(line, "# ")
	candidate = strings.TrimSuffix(candidate, ":")
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	name, ok := sectionNames[candidate]
	return name, ok
}

// headerName takes the first header line that is not a contact detail.
func headerName(header []string) string {
	for _, line := range header {
		if emailPattern.MatchString(line) || phonePattern.MatchString(line) {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "# "))
	}
	return ""
}

func parseSkills(lines []string) []string {
	var skills []string
	seen := make(map[string]bool)
	for _, line := range lines {
		line = strings.TrimLeft(line, "-* ")
		for _, part := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == '|'
		}) {
			skill := strings.TrimSpace(part)
			if skill == "" {
				continue
			}
			key := strings.ToLower(skill)
			if seen[key] {
				continue
			}
			seen[key] = true
			skills = append(skills, skill)
		}
	}
	return skills
}

// parseExperience treats each bullet or line as one entry. "Title at Company"
// and "Title - Company" both split; a trailing year range becomes the dates.
func parseExperience(lines []string) []pipeline.Experience {
	var entries []pipeline.Experience
	for _, line := range lines {
		line = strings.TrimLeft(line, "-* ")
		if line == "" {
			continue
		}
		entry := pipeline.Experience{}
		if loc := rangePattern.FindStringSubmatchIndex(line); loc != nil {
			entry.Start = line[loc[2]:loc[3]]
			entry.End = strings.ToLower(line[loc[4]:loc[5]])
			line = strings.TrimRight(strings.TrimSpace(line[:loc[0]]), " ,(")
		}
		title, company := splitRole(line)
		if title == "" {
			continue
		}
		entry.Title = title
		entry.Company = company
		entries = append(entries, entry)
	}
	return entries
}

func splitRole(line string) (title, company string) {
	for _, sep := range []string{" at ", " @ ", " - ", " — ", ", "} {
		if idx := strings.Index(line, sep); idx > 0 {
			return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(sep):])
		}
	}
	return strings.TrimSpace(line), ""
}

func parseEducation(lines []string) []pipeline.Education {
	var entries []pipeline.Education
	for _, line := range lines {
		line = strings.TrimLeft(line, "-* ")
		if line == "" {
			continue
		}
		entry := pipeline.Education{}
		if year := yearPattern.FindString(line); year != "" {
			entry.Year = year
		}
		degree, institution := splitRole(line)
		entry.Degree = strings.TrimRight(strings.TrimSpace(degree), " ,")
		entry.Institution = strings.TrimRight(strings.TrimSpace(strings.TrimSuffix(institution, entry.Year)), " ,(")
		if entry.Degree == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
