package arena

import (
	"fmt"
	"strings"
)

// FormatError reports a verdict that violates the textual contract.
// It is user visible: the round keeps its verses but stays unjudged.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("verdict format: %s", e.Reason)
}

// Verdict is the structured form of a judge's raw text.
type Verdict struct {
	Winner     string
	Analysis1  string
	Analysis2  string
	Comparison string
}

// ParseVerdict extracts the winner line and the named sections from raw
// verdict text. The winner must be one of the two contestant names; any
// other value is a FormatError. A missing section header yields an
// empty section, not an error.
func ParseVerdict(text, contestant1, contestant2 string) (Verdict, error) {
	winner, err := parseWinner(text, contestant1, contestant2)
	if err != nil {
		return Verdict{}, err
	}
	h1 := analysisHeader(contestant1)
	h2 := analysisHeader(contestant2)
	const hc = "Comparison:"
	return Verdict{
		Winner:     winner,
		Analysis1:  section(text, h1, []string{h2, hc}),
		Analysis2:  section(text, h2, []string{h1, hc}),
		Comparison: section(text, hc, []string{h1, h2}),
	}, nil
}

func analysisHeader(name string) string {
	return fmt.Sprintf("Analysis of %s's verse:", name)
}

func parseWinner(text, contestant1, contestant2 string) (string, error) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*"))
		if len(trimmed) < len("winner:") || !strings.EqualFold(trimmed[:len("winner:")], "winner:") {
			continue
		}
		name := strings.TrimSpace(trimmed[len("winner:"):])
		name = strings.TrimRight(name, ".")
		name = strings.Trim(name, "* ")
		switch {
		case strings.EqualFold(name, contestant1):
			return contestant1, nil
		case strings.EqualFold(name, contestant2):
			return contestant2, nil
		default:
			return "", &FormatError{Reason: fmt.Sprintf("winner %q is not a contestant", name)}
		}
	}
	return "", &FormatError{Reason: "no winner line found"}
}

// section returns the cleaned text between header and the nearest
// following known header, or "" when header is absent. Header search is
// case insensitive.
func section(text, header string, others []string) string {
	i := indexFold(text, header)
	if i < 0 {
		return ""
	}
	rest := text[i+len(header):]
	end := len(rest)
	for _, o := range others {
		if j := indexFold(rest, o); j >= 0 && j < end {
			end = j
		}
	}
	return cleanSection(rest[:end])
}

// indexFold finds substr in s ignoring case, returning a byte offset
// into s. Matching compares byte-length-equal windows with EqualFold,
// so offsets stay valid for names whose lowercase form changes byte
// length; a case variant of a different byte length is simply not
// matched, which degrades to an empty section.
func indexFold(s, substr string) int {
	if substr == "" {
		return 0
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

// cleanSection trims whitespace, collapses repeated ". " runs and drops
// redundant trailing periods. Applying it twice returns the same string.
func cleanSection(s string) string {
	s = strings.TrimSpace(s)
	for strings.Contains(s, ". . ") {
		s = strings.ReplaceAll(s, ". . ", ". ")
	}
	for strings.Contains(s, ".. ") {
		s = strings.ReplaceAll(s, ".. ", ". ")
	}
	for strings.HasSuffix(s, "..") {
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
