package analyze

import (
	"sort"
	"strings"
)

// summaryKeywordCount is how many of the text's own top keywords score
// its sentences.
const summaryKeywordCount = 20

// Summarize produces an extractive summary: sentences are scored by
// overlap with the text's top keywords, the best are selected, and the
// selection is emitted in original order until maxChars is spent. The
// result is deterministic for a given input.
func Summarize(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 500
	}
	text = strings.TrimSpace(text)
	if len(text) <= maxChars {
		return text
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return truncateRunes(text, maxChars)
	}

	keywords := Keywords(text, summaryKeywordCount)
	weight := make(map[string]int, len(keywords))
	for _, kw := range keywords {
		weight[kw.Word] = kw.Count
	}

	type scored struct {
		index int
		score int
	}
	order := make([]scored, len(sentences))
	for i, s := range sentences {
		var score int
		for _, w := range Tokenize(s) {
			score += weight[w]
		}
		order[i] = scored{index: i, score: score}
	}
	// Stable sort keeps earlier sentences ahead on ties.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})

	// Selection stops at the first candidate that would overflow the
	// budget; filling leftover space with low-score sentences would pad
	// summaries with noise.
	selected := make(map[int]bool)
	budget := maxChars
	for _, cand := range order {
		s := sentences[cand.index]
		need := len(s)
		if len(selected) > 0 {
			need++
		}
		if need > budget {
			break
		}
		selected[cand.index] = true
		budget -= need
	}

	if len(selected) == 0 {
		return truncateRunes(sentences[order[0].index], maxChars)
	}

	var out []string
	for i, s := range sentences {
		if selected[i] {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

func truncateRunes(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
