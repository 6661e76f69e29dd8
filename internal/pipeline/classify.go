package pipeline

import "regexp"

// The research template asks the agent for a "**Type**: GUIDANCE" line. Plain
// "Type: GUIDANCE" is accepted too, with or without the 📖 marker.
var guidanceMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\*\*Type\*\*:\s*(?:📖\s*)?GUIDANCE`),
	regexp.MustCompile(`(?i)Type:\s*(?:📖\s*)?GUIDANCE`),
}

// Classify inspects research content for a guidance marker. Anything else,
// including an empty or ambiguous report, is a code change.
func Classify(research string) Classification {
	for _, re := range guidanceMarkers {
		if re.MatchString(research) {
			return Guidance
		}
	}
	return CodeChange
}
