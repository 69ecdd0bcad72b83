package validator

import (
	"fmt"
	"strings"

	"docsync/internal/excerpt"
)

// Prompt budgets, in bytes.
const (
	checkDocumentLimit = 10000
	checkOutlineLimit  = 5000
	checkSourceLimit   = 5000
	checkSourcesLimit  = 15000
	fixSourceLimit     = 3000
	fixSourcesLimit    = 10000
)

func renderSources(srcs []fetchedSource, perSource, total int) string {
	parts := make([]string, 0, len(srcs))
	for _, s := range srcs {
		parts = append(parts, fmt.Sprintf("=== SOURCE: %s ===\n%s", s.Locator, excerpt.Head(s.Content, perSource)))
	}
	return excerpt.Head(strings.Join(parts, "\n\n"), total)
}

func buildCheckPrompt(iteration int, document, outlineJSON, instruction string, srcs []fetchedSource) string {
	return fmt.Sprintf(`DOCUMENTATION COMPLETENESS REVIEW (pass %d)

Find material that the outline's sources call for but the document below does not contain.

DOCUMENT:
`+"```markdown"+`
%s
`+"```"+`

OUTLINE (sections, prompts and the source files chosen for each):
`+"```json"+`
%s
`+"```"+`

SOURCE FILES:
%s

How to review:
1. Match each outline section to its part of the document.
2. Compare what the section prompt asks for, and why each source was chosen, against what the document says.
3. Report material that should be present but is missing or wrong.

Judge "should be present" by:
- the document instruction: %s
- the section prompt
- the source content and the stated reason for including it

Priorities:
- HIGH: missing working examples, essential API details, or core concepts the sources were chosen for
- MEDIUM: missing important details, context or usage patterns
- LOW: minor details, wording or formatting

Reply with one JSON object and nothing else:
{
  "needs_fixing": true or false,
  "issues": [
    {
      "priority": "HIGH|MEDIUM|LOW",
      "section": "## Section heading",
      "description": "what is missing",
      "sources": ["source URLs containing the material"],
      "recommendation": "what to add"
    }
  ]
}`,
		iteration,
		excerpt.Head(document, checkDocumentLimit),
		excerpt.Head(outlineJSON, checkOutlineLimit),
		renderSources(srcs, checkSourceLimit, checkSourcesLimit),
		instruction,
	)
}

func buildFixPrompt(iteration int, document, issuesJSON string, srcs []fetchedSource) string {
	return fmt.Sprintf(`DOCUMENTATION FIXES (pass %d)

Resolve the HIGH and MEDIUM priority issues listed below.

DOCUMENT:
`+"```markdown"+`
%s
`+"```"+`

ISSUES:
`+"```json"+`
%s
`+"```"+`

SOURCE FILES (reference):
%s

Rules:
1. For each issue, find its section, read the cited sources and add the missing material there.
2. Keep every existing heading and all existing content; only add or correct.
3. Keep code examples runnable and the markdown style consistent.
4. Ignore LOW priority concerns.

Reply with the complete updated document as markdown, with no commentary:`,
		iteration,
		document,
		issuesJSON,
		renderSources(srcs, fixSourceLimit, fixSourcesLimit),
	)
}
