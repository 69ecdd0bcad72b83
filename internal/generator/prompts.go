package generator

import (
	"fmt"
	"strings"

	"docsync/internal/outline"
)

const (
	systemPrompt = "You are a technical documentation writer. You write one section of a larger document at a time."
	rule         = "=============================================================================="
	noSources    = "No source files provided for this section."
)

func banner(title string) string {
	return rule + "\n" + title + "\n" + rule
}

// buildSectionPrompt assembles the request for one section's body text.
func buildSectionPrompt(instruction string, s *outline.Section, sources, documentSoFar string) string {
	var b strings.Builder

	b.WriteString("Write the body of the section described below.\n\n")
	if strings.TrimSpace(instruction) != "" {
		b.WriteString(banner("DOCUMENT INSTRUCTION"))
		b.WriteString("\n" + instruction + "\n\n")
	}

	b.WriteString(banner("SECTION TASK"))
	b.WriteString("\n\n" + s.Prompt + "\n\n")

	b.WriteString(banner("SOURCE MATERIAL"))
	b.WriteString("\n\n" + sources + "\n\n")

	b.WriteString(banner("DOCUMENT SO FAR (context only)"))
	b.WriteString("\n\n" + documentSoFar + "\n\n")
	b.WriteString(banner("END OF DOCUMENT SO FAR"))
	b.WriteString(`

The last heading above is the section you are writing. Use the earlier text
only for continuity:
- do not repeat explanations, setup steps or examples it already contains
- refer back briefly ("as described above") instead of restating
- write only what is new for this section

`)

	b.WriteString(structureConstraint(s))

	b.WriteString("\n")
	b.WriteString(banner("WRITING RULES"))
	b.WriteString(`
- Skip anything the sources mark as deprecated or superseded; describe only current behavior.
- Ground every claim and example in the source material.
- Use markdown for lists, tables and code blocks.
- Keep the tone direct and practical.

Write the section body now:`)
	return b.String()
}

// structureConstraint tells the model which headings the traversal will
// emit on its own so it never writes them itself.
func structureConstraint(s *outline.Section) string {
	var b strings.Builder
	headings := descendantHeadings(s.Sections)

	if len(headings) == 0 {
		b.WriteString(banner("STRUCTURE: THIS SECTION HAS ZERO SUBSECTIONS"))
		fmt.Fprintf(&b, "\n\nThe section %q has no subsections in the outline.\n", s.Heading)
		b.WriteString(`
Rules:
- Do not create subsections of any kind.
- Do not write any markdown heading (no "Overview", "Examples", "Usage" or similar).
- Paragraphs, lists, tables and code blocks are allowed.
`)
		return b.String()
	}

	b.WriteString(banner("STRUCTURE: EXACT SUBSECTIONS"))
	fmt.Fprintf(&b, "\n\nThe section %q has exactly %d subsection(s). They are generated separately and will appear after your text, in this order:\n\n", s.Heading, len(headings))
	b.WriteString(strings.Join(headings, "\n"))
	b.WriteString(`

Rules:
- Write only the introductory text for this section itself.
- Do not write any content that belongs under the headings listed above.
- Do not introduce or summarise those subsections.
- Do not write any markdown heading; the listed headings are inserted automatically.
- Do not add subsections beyond the list; it is complete.
`)
	return b.String()
}

// descendantHeadings lists every heading below sections, indented two spaces
// per level.
func descendantHeadings(sections []outline.Section) []string {
	var out []string
	_ = outline.Walk(sections, func(s *outline.Section, depth int) error {
		out = append(out, strings.Repeat("  ", depth)+s.Heading)
		return nil
	})
	return out
}
