package planner

import (
	"fmt"
	"strings"

	"docsync/internal/excerpt"
)

const systemPrompt = `You are a technical documentation architect. You read source code and design the outline of a long-form technical document.

The outline you produce drives a generator that writes one section at a time, so every section needs a precise writing prompt and the source files that section should draw on.

Return valid JSON only.`

const taskInstructions = `## Task
Design a documentation outline. Return JSON with this structure:
{
  "title": "Clear, descriptive document title",
  "document_instruction": "Guidance applied to every section (audience, tone, depth)",
  "sections": [
    {
      "heading": "## Section heading (markdown, hashes matching level)",
      "level": 2,
      "prompt": "What this section must cover",
      "sources": [
        {"file": "<source key exactly as listed above>", "reasoning": "What this file contributes"}
      ],
      "sections": []
    }
  ]
}

Rules:
- Cite sources only by the keys listed under Source Files.
- Nest subsections under "sections"; a subsection's level is its parent's level plus one.
- Order sections from overview to detail.
- Keep each section focused; prefer several small sections over one large one.`

func buildPrompt(req Request) string {
	var b strings.Builder
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		purpose = req.Output
	}
	fmt.Fprintf(&b, "Create a documentation outline for: %s\n\n", purpose)
	if req.Output != "" {
		fmt.Fprintf(&b, "The document will be published at: %s\n\n", req.Output)
	}

	b.WriteString("## Source Files\n")
	used := 0
	omitted := 0
	for _, f := range req.Files {
		body := excerpt.Excerpt(f.Path, f.Content, perFileBudget)
		if used+len(body) > promptBudget {
			omitted++
			fmt.Fprintf(&b, "\n### %s\n(content omitted)\n", f.Key())
			continue
		}
		used += len(body)
		fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", f.Key(), body)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "\n(%d file(s) listed without content to stay within the prompt budget)\n", omitted)
	}

	b.WriteString("\n")
	b.WriteString(taskInstructions)
	return b.String()
}
