package promptstyle

import "strings"

type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Header opens every wrapped system prompt.
const Header = "[clipreview reviewer rules]"

var quoteRules = []string{
	"Quote transcript text exactly as it appears.",
	"Never paraphrase, translate or join separate quotes.",
	"Do not add commentary outside the requested output.",
}

// ApplySystem wraps a system prompt with the reviewer rules. Already wrapped
// or blank prompts are returned trimmed and otherwise unchanged.
func ApplySystem(system string, mode Mode) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.HasPrefix(base, Header) {
		return base
	}
	lines := append([]string{Header}, quoteRules...)
	if mode == ModeJSON {
		lines = append(lines, "Reply with one JSON object matching the schema, with no extra keys.")
	}
	return strings.Join(lines, "\n- ") + "\n\n" + base
}
