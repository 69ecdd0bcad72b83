package generator

import "strings"

// Section quality issue codes recorded as report signals.
const (
	issueEmpty        = "empty_content"
	issueStrayHeading = "stray_heading"
	issueListHeavy    = "list_heavy"
	issueInstruction  = "instructional_text"
)

var instructionalMarkers = []string{
	"explain the", "describe the", "must include", "tbd", "placeholder", "lorem ipsum",
}

// assessSection flags generated section bodies that break the structural
// constraint or read like an unfinished draft.
func assessSection(content string) []string {
	text := strings.TrimSpace(content)
	if text == "" {
		return []string{issueEmpty}
	}

	var issues []string
	total, bullets := 0, 0
	heading, inFence := false, false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if line == "" || inFence {
			continue
		}
		total++
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			bullets++
		}
		if isMarkdownHeading(line) {
			heading = true
		}
	}
	if heading {
		issues = append(issues, issueStrayHeading)
	}
	if total >= 4 && float64(bullets)/float64(total) > 0.6 {
		issues = append(issues, issueListHeavy)
	}

	lower := strings.ToLower(text)
	for _, token := range instructionalMarkers {
		if strings.Contains(lower, token) {
			issues = append(issues, issueInstruction)
			break
		}
	}
	return issues
}

func isMarkdownHeading(line string) bool {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	return level > 0 && level < 7 && len(line) > level && line[level] == ' '
}
