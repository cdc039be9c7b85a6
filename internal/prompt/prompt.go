// Package prompt builds the instructions sent to the language model for
// verse generation and round judging.
package prompt

import (
	"fmt"
	"strings"

	"rageraps/internal/domain"
	"rageraps/internal/knowledge"
)

// RapperSystem returns the system instruction for a contestant's
// producer task.
func RapperSystem(name, style, styleDescription string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a rapper competing in a rap battle.\n", name)
	fmt.Fprintf(&sb, "Your style is %s.", style)
	if styleDescription != "" {
		fmt.Fprintf(&sb, " %s.", strings.TrimSuffix(styleDescription, "."))
	}
	sb.WriteString("\nWrite a single verse of 8 to 16 lines. Stay in character.")
	sb.WriteString(" Respond with the verse text only, no preamble and no stage directions.")
	return sb.String()
}

// RapperUser returns the per-round user prompt: opponent, round number,
// the battle so far and any retrieved background material.
func RapperUser(name, opponent string, roundNumber int, transcript []domain.Verse, snippets []domain.Snippet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Round %d. Your opponent is %s.\n", roundNumber, opponent)
	if ctx := knowledge.FormatSnippets(snippets); ctx != "" {
		sb.WriteString("\nBackground material you may draw on:\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	if len(transcript) > 0 {
		sb.WriteString("\nThe battle so far:\n")
		for _, v := range transcript {
			fmt.Fprintf(&sb, "\n%s:\n%s\n", v.Contestant, v.Content)
		}
		sb.WriteString("\nRespond to what has been said and land your own attacks.")
	} else {
		sb.WriteString("\nThis is the opening round. Set the tone.")
	}
	return sb.String()
}

// JudgeSystem returns the system instruction for the evaluation task.
// The response format is load-bearing: the verdict parser depends on the
// exact header lines requested here.
func JudgeSystem() string {
	return `You are an impartial rap battle judge. You will be shown one verse from each contestant.
Evaluate wordplay, flow, relevance to the opponent, and style consistency.
Your response MUST follow this exact format:

Winner: <contestant name>
Analysis of <first contestant>'s verse: <your analysis>
Analysis of <second contestant>'s verse: <your analysis>
Comparison: <direct comparison of the two verses>

The winner must be exactly one of the two contestant names, spelled as given.`
}

// JudgeUser returns the judging prompt for one round.
func JudgeUser(v1, v2 domain.Verse, style1, style2 string, snippets []domain.Snippet) string {
	var sb strings.Builder
	if ctx := knowledge.FormatSnippets(snippets); ctx != "" {
		sb.WriteString("Background on the contestants:\n")
		sb.WriteString(ctx)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "%s (style: %s) raps:\n%s\n\n", v1.Contestant, style1, v1.Content)
	fmt.Fprintf(&sb, "%s (style: %s) raps:\n%s\n\n", v2.Contestant, style2, v2.Content)
	fmt.Fprintf(&sb, "Judge this round between %s and %s.", v1.Contestant, v2.Contestant)
	return sb.String()
}
