package fraud

import (
	"fmt"
	"strings"
)

// Summarize renders a one-paragraph explanation of the flags for reviewers
// and the audit log.
func Summarize(flags []RedFlag) string {
	var triggered, unknown []string
	for _, f := range flags {
		switch f.Value {
		case SignalTrue:
			triggered = append(triggered, fmt.Sprintf("%s (%s)", f.Kind, f.Detail))
		case SignalUnknown:
			unknown = append(unknown, fmt.Sprintf("%s (%s)", f.Kind, f.Detail))
		}
	}

	if len(triggered) == 0 && len(unknown) == 0 {
		return fmt.Sprintf("All %d fraud checks passed with complete evidence.", len(flags))
	}

	var b strings.Builder
	if len(triggered) > 0 {
		fmt.Fprintf(&b, "Triggered: %s.", strings.Join(triggered, "; "))
	}
	if len(unknown) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Undetermined: %s.", strings.Join(unknown, "; "))
	}
	return b.String()
}
