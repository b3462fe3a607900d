package scoreline

import "strings"

// ReasoningHeading opens the detailed-reasoning section of a run.
const ReasoningHeading = "DETAILED REASONING"

// DetailedReasoning returns subjectID's excerpt from the detailed-reasoning
// section of text: the rest of the first "<Label> <id>:" line that follows a
// line carrying ReasoningHeading. It returns "" when there is no section or
// no entry for the subject.
func DetailedReasoning(text, subjectID string, g Grammar) string {
	g = g.withDefaults()
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		if !inSection {
			inSection = strings.Contains(strings.ToUpper(line), ReasoningHeading)
			continue
		}
		toks := lex(line)
		id, idx, ok := subjectIn(toks, g.Label)
		if !ok || id != subjectID || !at(toks, idx+2, tokColon) {
			continue
		}
		if _, scored := markerEnd(toks, g.Marker); scored {
			continue
		}
		return strings.Trim(line[toks[idx+2].end:], " \t*")
	}
	return ""
}
