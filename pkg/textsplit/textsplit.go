// Package textsplit turns one LLM response into the short message parts a
// person would actually send: split on line breaks and sentence boundaries,
// merge tiny fragments, keep URLs whole, and cut runaway repetition loops.
package textsplit

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	maxPartLength = 120
	minPartLength = 8
	maxParts      = 5
)

var (
	urlRegex       = regexp.MustCompile(`https?://\S+`)
	pipeRunRegex   = regexp.MustCompile(`\|{2,}`)
	lineBreakRegex = regexp.MustCompile(`\n+`)
	sentenceRegex  = regexp.MustCompile(`[^.!?…]+[.!?…]*\s*`)
	placeholderRe  = regexp.MustCompile("\x00URL(\\d+)\x00")
)

// StripRepetition truncates a text that degenerated into a repeating loop,
// keeping a single occurrence of the repeated run. Pattern lengths from 5
// to 60 characters are checked, shortest first, and a run counts once it
// appears three or more times back to back.
func StripRepetition(text string) string {
	runes := []rune(text)
	n := len(runes)
	for patLen := 5; patLen <= 60; patLen++ {
		for start := 0; start+3*patLen <= n; start++ {
			repeats := 1
			for start+(repeats+1)*patLen <= n &&
				string(runes[start+repeats*patLen:start+(repeats+1)*patLen]) == string(runes[start:start+patLen]) {
				repeats++
			}
			if repeats >= 3 {
				return strings.TrimSpace(string(runes[:start+patLen]))
			}
		}
	}
	return text
}

// Split breaks a response into at most five short parts. An input that
// produces no parts is returned whole.
func Split(text string) []string {
	cleaned := StripRepetition(strings.TrimSpace(pipeRunRegex.ReplaceAllString(text, "\n")))

	var parts []string
	for _, line := range lineBreakRegex.Split(cleaned, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) <= maxPartLength {
			parts = append(parts, line)
			continue
		}

		// Too long for one part; pack sentences greedily.
		current := ""
		for _, sentence := range splitBySentences(line) {
			switch {
			case current == "":
				current = sentence
			case len(current)+1+len(sentence) <= maxPartLength:
				current += " " + sentence
			default:
				parts = append(parts, current)
				current = sentence
			}
		}
		if current != "" {
			parts = append(parts, current)
		}
	}

	// Fold fragments below the minimum into their predecessor, unless the
	// fragment carries a URL or the merge would overflow.
	var merged []string
	for _, part := range parts {
		if len(merged) > 0 &&
			len(part) < minPartLength &&
			!urlRegex.MatchString(part) &&
			len(merged[len(merged)-1])+1+len(part) <= maxPartLength {
			merged[len(merged)-1] += " " + part
		} else {
			merged = append(merged, part)
		}
	}

	if len(merged) == 0 {
		return []string{text}
	}
	if len(merged) > maxParts {
		merged = merged[:maxParts]
	}
	return merged
}

// splitBySentences splits on sentence-ending punctuation while keeping
// URLs intact (their dots must not count as sentence ends).
func splitBySentences(text string) []string {
	var urls []string
	protected := urlRegex.ReplaceAllStringFunc(text, func(url string) string {
		urls = append(urls, url)
		return "\x00URL" + strconv.Itoa(len(urls)-1) + "\x00"
	})

	raw := sentenceRegex.FindAllString(protected, -1)
	if raw == nil {
		raw = []string{protected}
	}

	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		s = placeholderRe.ReplaceAllStringFunc(s, func(ph string) string {
			idx, err := strconv.Atoi(placeholderRe.FindStringSubmatch(ph)[1])
			if err != nil || idx >= len(urls) {
				return ph
			}
			return urls[idx]
		})
		out = append(out, s)
	}
	return out
}
