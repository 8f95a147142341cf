package behavior

import "strings"

// splitSentences breaks text into sentences, each keeping its terminator.
// Runs of terminators (ellipses, "?!") stay attached to one sentence so a
// later join reproduces the original text byte for byte.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		if isTerminator(runes[i]) {
			for i < len(runes) && isTerminator(runes[i]) {
				i++
			}
			for i < len(runes) && runes[i] == ' ' {
				i++
			}
			out = append(out, string(runes[start:i]))
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// trimTerminator returns the sentence body and its trailing
// terminator+space suffix.
func trimTerminator(sentence string) (body, suffix string) {
	end := len(sentence)
	for end > 0 && sentence[end-1] == ' ' {
		end--
	}
	term := end
	for term > 0 && isTerminator(rune(sentence[term-1])) {
		term--
	}
	return sentence[:term], sentence[term:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	// Leave acronyms and the pronoun "I" alone.
	if r[0] == 'I' && (len(r) == 1 || r[1] == ' ' || r[1] == '\'') {
		return s
	}
	if len(r) > 1 && r[0] >= 'A' && r[0] <= 'Z' && r[1] >= 'A' && r[1] <= 'Z' {
		return s
	}
	return strings.ToLower(string(r[0])) + string(r[1:])
}
