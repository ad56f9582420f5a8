package schemas

import (
	"fmt"
	"strings"
)

// Render produces the textual accessibility-style listing of an observation,
// one element per line, the form the model is prompted with:
//
//	[12] button 'Add to Cart'
func (o *Observation) Render() string {
	var b strings.Builder
	for _, el := range o.Elements {
		fmt.Fprintf(&b, "[%d] %s '%s'\n", el.ID, el.Role, el.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Digest renders the observation and truncates it to at most maxChars, for
// inclusion in trajectory steps and prompts. maxChars <= 0 means unlimited.
func (o *Observation) Digest(maxChars int) string {
	s := o.Render()
	if maxChars > 0 && len(s) > maxChars {
		s = s[:maxChars] + "\n[...truncated]"
	}
	return s
}
