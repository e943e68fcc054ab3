package planner

import (
	"fmt"
	"strings"
)

var fallbackSteps = []string{
	"Clarify the problem and target user.",
	"Define success criteria and constraints.",
	"Sketch flows and core screens.",
	"List technical components and data model.",
	"Plan milestones and test cases.",
	"Ship MVP, gather feedback, iterate.",
}

var nextSteps = []string{
	"Draft UI wireframes",
	"Create data schema",
	"Build MVP route & storage",
	"Validate with one user",
}

// Fallback is the local planning heuristic. Its output depends only on idea.
func Fallback(idea string) string {
	var b strings.Builder
	b.WriteString("Plan:\n")
	b.WriteString(strings.TrimSpace(idea))
	b.WriteString("\n\nSteps:\n")
	for _, s := range fallbackSteps {
		b.WriteString("• ")
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteString("\nNext 48h:\n")
	for i, s := range nextSteps {
		fmt.Fprintf(&b, "%d) %s\n", i+1, s)
	}
	return b.String()
}
