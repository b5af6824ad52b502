package tutor

import (
	"regexp"
	"strings"

	"studynerd/internal/logging"
)

// =============================================================================
// DIRECTIVE EXTRACTION
// =============================================================================
// Mentor responses may carry two kinds of in-band visualization directives:
// fenced blocks whose content is mermaid diagram source, and inline
// [CONCEPTUAL_VISUAL: ...] tags requesting a generated image. Both scans run
// independently over the full response text; diagram candidates are emitted
// first, then image requests, each group in document order. Malformed
// directive syntax never errors - it simply yields no candidate.

// CandidateKind distinguishes the two directive kinds.
type CandidateKind string

const (
	CandidateDiagram     CandidateKind = "diagram"
	CandidateImagePrompt CandidateKind = "image-prompt"
)

// Candidate is a transient visualization directive found in response text.
// It is consumed immediately by the Builder and never persisted.
type Candidate struct {
	Kind    CandidateKind
	Payload string
}

var (
	// Fenced regions, optionally tagged with a language hint. The tag is not
	// trusted: qualification is decided from the content alone.
	fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \t]*\r?\n?(.*?)```")

	// Inline conceptual-image directives. Content runs to the closing bracket;
	// an unterminated tag produces no match.
	conceptualVisualRe = regexp.MustCompile(`(?i)\[CONCEPTUAL_VISUAL:\s*([^\]]*)\]`)
)

// diagramKeywords is the allow-list of mermaid diagram-type keywords. A fenced
// block whose trimmed content starts with one of these (case-insensitive)
// qualifies as a diagram candidate.
var diagramKeywords = []string{
	"graph",
	"flowchart",
	"sequencediagram",
	"classdiagram",
	"statediagram",
	"erdiagram",
	"gantt",
	"pie",
	"gitgraph",
	"journey",
	"c4context",
}

// ExtractCandidates scans one backend response for visualization directives
// and returns them as an ordered candidate list: diagrams first, then image
// requests, each group in document order. Fenced blocks that do not look like
// diagram source are dropped silently.
func ExtractCandidates(text string) []Candidate {
	if text == "" {
		return nil
	}

	var out []Candidate

	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		source := strings.TrimSpace(m[1])
		if !looksLikeDiagram(source) {
			continue
		}
		out = append(out, Candidate{Kind: CandidateDiagram, Payload: source})
	}

	for _, m := range conceptualVisualRe.FindAllStringSubmatch(text, -1) {
		prompt := strings.TrimSpace(m[1])
		if prompt == "" {
			continue
		}
		out = append(out, Candidate{Kind: CandidateImagePrompt, Payload: prompt})
	}

	if len(out) > 0 {
		logging.Extract("extracted %d candidate(s) from %d bytes of response", len(out), len(text))
	}

	return out
}

// looksLikeDiagram reports whether fenced content is plausibly mermaid source.
// This is the false-positive guard that keeps ordinary code snippets out of
// the visualization feed: the content must start with a known diagram-type
// keyword or contain a directed-edge token.
func looksLikeDiagram(source string) bool {
	if source == "" {
		return false
	}
	lower := strings.ToLower(source)
	for _, kw := range diagramKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return strings.Contains(source, "-->")
}
