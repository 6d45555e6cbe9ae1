// Package analyze implements the deterministic text analysis behind
// analyze_content, summarize_memory, and categorize_memories. Everything
// here is pure in-memory computation: no embedding provider, no I/O, and
// no database access, so callers may run it outside any transaction.
package analyze

import (
	"regexp"
	"sort"
	"strings"
)

// Keyword is one ranked term with its occurrence count.
type Keyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// SentimentResult reports lexicon hits and the normalized score.
type SentimentResult struct {
	Positive int     `json:"positive"`
	Negative int     `json:"negative"`
	Score    float64 `json:"score"`
}

var wordRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z']*`)

// stopWords is the English stopword list used by keyword extraction and
// summarization. Sentiment deliberately does not filter by it: "not" is a
// stopword but flips nothing here since the lexicon is unigram-based.
var stopWords = map[string]bool{
	"a": true, "about": true, "above": true, "after": true, "again": true,
	"all": true, "also": true, "am": true, "an": true, "and": true,
	"any": true, "are": true, "as": true, "at": true, "be": true,
	"because": true, "been": true, "before": true, "being": true,
	"below": true, "between": true, "both": true, "but": true, "by": true,
	"can": true, "cannot": true, "could": true, "did": true, "do": true,
	"does": true, "doing": true, "down": true, "during": true,
	"each": true, "few": true, "for": true, "from": true, "further": true,
	"had": true, "has": true, "have": true, "having": true, "he": true,
	"her": true, "here": true, "hers": true, "him": true, "his": true,
	"how": true, "i": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "its": true, "itself": true, "just": true,
	"me": true, "more": true, "most": true, "my": true, "no": true,
	"nor": true, "not": true, "now": true, "of": true, "off": true,
	"on": true, "once": true, "only": true, "or": true, "other": true,
	"our": true, "ours": true, "out": true, "over": true, "own": true,
	"same": true, "she": true, "should": true, "so": true, "some": true,
	"such": true, "than": true, "that": true, "the": true, "their": true,
	"theirs": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true,
	"through": true, "to": true, "too": true, "under": true, "until": true,
	"up": true, "very": true, "was": true, "we": true, "were": true,
	"what": true, "when": true, "where": true, "which": true,
	"while": true, "who": true, "whom": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true, "yours": true,
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "amazing": true,
	"wonderful": true, "fantastic": true, "love": true, "like": true,
	"best": true, "better": true, "success": true, "successful": true,
	"happy": true, "glad": true, "positive": true, "improve": true,
	"improved": true, "improvement": true, "works": true, "working": true,
	"solved": true, "fixed": true, "fast": true, "faster": true,
	"clean": true, "clear": true, "easy": true, "simple": true,
	"helpful": true, "useful": true, "effective": true, "efficient": true,
	"reliable": true, "stable": true, "correct": true, "win": true,
	"done": true, "complete": true, "completed": true, "ready": true,
}

var negativeWords = map[string]bool{
	"bad": true, "worse": true, "worst": true, "terrible": true,
	"awful": true, "horrible": true, "hate": true, "fail": true,
	"failed": true, "failure": true, "failing": true, "broken": true,
	"break": true, "breaks": true, "bug": true, "bugs": true,
	"error": true, "errors": true, "crash": true, "crashes": true,
	"crashed": true, "slow": true, "slower": true, "wrong": true,
	"problem": true, "problems": true, "issue": true, "issues": true,
	"difficult": true, "hard": true, "confusing": true, "unclear": true,
	"unstable": true, "unreliable": true, "incorrect": true,
	"missing": true, "lost": true, "stuck": true, "blocked": true,
	"regression": true, "leak": true, "deadlock": true,
}

// Tokenize lowercases text and returns its word tokens.
func Tokenize(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	if words == nil {
		return []string{}
	}
	return words
}

// Keywords returns the topN most frequent non-stopword tokens. Ties break
// alphabetically so results are stable across runs.
func Keywords(text string, topN int) []Keyword {
	if topN <= 0 {
		topN = 10
	}

	counts := make(map[string]int)
	for _, w := range Tokenize(text) {
		if stopWords[w] || len(w) < 2 {
			continue
		}
		counts[w]++
	}

	ranked := make([]Keyword, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, Keyword{Word: w, Count: c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Word < ranked[j].Word
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// Sentiment counts lexicon hits and scores (pos−neg)/(pos+neg). Text with
// no lexicon hits scores 0.
func Sentiment(text string) SentimentResult {
	var res SentimentResult
	for _, w := range Tokenize(text) {
		switch {
		case positiveWords[w]:
			res.Positive++
		case negativeWords[w]:
			res.Negative++
		}
	}
	if total := res.Positive + res.Negative; total > 0 {
		res.Score = float64(res.Positive-res.Negative) / float64(total)
	}
	return res
}

// Complexity is the average number of words per sentence.
func Complexity(text string) float64 {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	var words int
	for _, s := range sentences {
		words += len(Tokenize(s))
	}
	return float64(words) / float64(len(sentences))
}

// Readability is the average word length in characters.
func Readability(text string) float64 {
	words := Tokenize(text)
	if len(words) == 0 {
		return 0
	}
	var chars int
	for _, w := range words {
		chars += len(w)
	}
	return float64(chars) / float64(len(words))
}

// SplitSentences splits text on terminal punctuation and newlines. The
// punctuation stays with its sentence so extractive summaries read as
// written; empty segments are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
			current.WriteRune(runes[i])
		}
		if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' {
			flush()
		}
	}
	flush()
	return sentences
}
