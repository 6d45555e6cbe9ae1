package analyze

import "sort"

// Categories memories can be classified into. CategoryOther is the
// fallback when no lexicon reaches the hit threshold.
const (
	CategoryTechnical = "technical"
	CategoryPlanning  = "planning"
	CategoryIdeas     = "ideas"
	CategoryResearch  = "research"
	CategoryOther     = "other"
)

// categoryLexicons maps each category to its trigger words. Title hits
// count double since titles are short and deliberate.
var categoryLexicons = map[string]map[string]bool{
	CategoryTechnical: {
		"code": true, "function": true, "api": true, "bug": true,
		"database": true, "server": true, "deploy": true, "deployment": true,
		"config": true, "configuration": true, "error": true, "debug": true,
		"test": true, "tests": true, "testing": true, "build": true,
		"compile": true, "library": true, "framework": true, "docker": true,
		"kubernetes": true, "git": true, "release": true, "query": true,
		"endpoint": true, "latency": true, "cache": true, "index": true,
		"migration": true, "schema": true, "refactor": true, "module": true,
		"implementation": true, "algorithm": true, "performance": true,
	},
	CategoryPlanning: {
		"plan": true, "planning": true, "roadmap": true, "milestone": true,
		"deadline": true, "schedule": true, "sprint": true, "backlog": true,
		"task": true, "tasks": true, "todo": true, "goal": true,
		"goals": true, "objective": true, "priority": true,
		"priorities": true, "timeline": true, "quarter": true,
		"meeting": true, "agenda": true, "review": true, "scope": true,
		"estimate": true, "budget": true, "deliverable": true,
	},
	CategoryIdeas: {
		"idea": true, "ideas": true, "concept": true, "brainstorm": true,
		"maybe": true, "possibly": true, "consider": true, "proposal": true,
		"suggestion": true, "what": true, "could": true, "might": true,
		"imagine": true, "experiment": true, "prototype": true,
		"sketch": true, "draft": true, "explore": true, "alternative": true,
		"inspiration": true, "vision": true,
	},
	CategoryResearch: {
		"research": true, "study": true, "paper": true, "papers": true,
		"analysis": true, "data": true, "results": true, "findings": true,
		"hypothesis": true, "evidence": true, "survey": true,
		"comparison": true, "benchmark": true, "evaluation": true,
		"literature": true, "source": true, "sources": true,
		"reference": true, "references": true, "experiment": true,
		"methodology": true, "conclusion": true, "observed": true,
	},
}

// Categorize classifies title+content into one category by lexicon hit
// count and suggests up to maxTags matching keywords as tags. Ties break
// in fixed category order so classification is deterministic.
func Categorize(title, content string, maxTags int) (string, []string) {
	if maxTags <= 0 {
		maxTags = 5
	}

	titleTokens := Tokenize(title)
	contentTokens := Tokenize(content)

	hits := make(map[string]int, len(categoryLexicons))
	matched := make(map[string]map[string]bool, len(categoryLexicons))
	for cat, lexicon := range categoryLexicons {
		matched[cat] = make(map[string]bool)
		for _, w := range titleTokens {
			if lexicon[w] {
				hits[cat] += 2
				matched[cat][w] = true
			}
		}
		for _, w := range contentTokens {
			if lexicon[w] {
				hits[cat]++
				matched[cat][w] = true
			}
		}
	}

	best := CategoryOther
	bestHits := 0
	for _, cat := range []string{CategoryTechnical, CategoryPlanning, CategoryIdeas, CategoryResearch} {
		if hits[cat] > bestHits {
			best = cat
			bestHits = hits[cat]
		}
	}
	if best == CategoryOther {
		return best, nil
	}

	tags := make([]string, 0, len(matched[best]))
	for w := range matched[best] {
		tags = append(tags, w)
	}
	sort.Strings(tags)
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return best, tags
}
