package llmclient

import (
	"regexp"
	"strings"
)

var (
	thinkTagRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

	// Lines that are themselves meta-commentary about the act of thinking,
	// not part of the answer. Matched whole-line, case-insensitive.
	thinkingLineRe = regexp.MustCompile(`(?i)^\s*(okay,?\s+)?(let me|i need to|i should|i'll|i will|i think|first,?\s+i|now,?\s+i|thinking about|let's think|my thinking|to answer this|looking at|wait|based on)\b.*$`)

	multiBlankRe = regexp.MustCompile(`\n{3,}`)
	multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
)

// StripThinking removes chain-of-thought artifacts a local model may emit
// ahead of its actual answer: explicit <think>...</think> blocks, then a
// heuristic pass over any remaining leading paragraph of think-aloud lines,
// then whitespace normalization.
//
// This mirrors a local model's tendency to narrate its reasoning before
// answering even when not asked to; stripping it keeps generated chapters
// free of "Let me look at this repository..." preambles.
func StripThinking(content string) string {
	content = thinkTagRe.ReplaceAllString(content, "")
	content = stripLeadingThinkingParagraph(content)
	content = multiBlankRe.ReplaceAllString(content, "\n\n")
	content = multiSpaceRe.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// stripLeadingThinkingParagraph drops a leading run of think-aloud lines,
// together with any blank lines among them, up to the first non-blank line
// that doesn't look like narration. Only the leading run is considered:
// a model that narrates mid-answer is left alone, since by then it is
// producing content the caller asked for.
func stripLeadingThinkingParagraph(content string) string {
	lines := strings.Split(content, "\n")
	cut := 0
	for cut < len(lines) {
		line := lines[cut]
		if strings.TrimSpace(line) == "" {
			cut++
			continue
		}
		if thinkingLineRe.MatchString(line) {
			cut++
			continue
		}
		break
	}
	if cut == 0 {
		return content
	}
	return strings.Join(lines[cut:], "\n")
}
