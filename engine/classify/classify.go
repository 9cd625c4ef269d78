// Package classify maps free-text queries to domain and intent labels using
// weighted keyword tables. Classification is pure, deterministic, and fails
// closed: ties and zero scores resolve to unknown/general so callers fall back
// to unfiltered retrieval instead of guessing wrong.
package classify

import (
	"sort"
	"strings"

	"github.com/VerityAI/verity-mvp/engine/domain"
)

// Classification is the result of classifying one query.
type Classification struct {
	Domain    domain.Domain `json:"domain"`
	Intent    domain.Intent `json:"intent"`
	Evidence  []string      `json:"evidence,omitempty"`
	FreshInfo bool          `json:"fresh_info"`
}

// Classify runs domain and intent classification over a query.
func Classify(query string) Classification {
	d, domainEv := DomainOf(query)
	i, intentEv := intentOf(query)
	return Classification{
		Domain:    d,
		Intent:    i,
		Evidence:  append(domainEv, intentEv...),
		FreshInfo: matchesAny(query, freshRules),
	}
}

// DomainOf scores text against the domain tables and returns the winning
// label with its matched-keyword evidence. Ties and zero scores return
// DomainUnknown. Also used at ingestion time on a document's leading text.
func DomainOf(text string) (domain.Domain, []string) {
	tokens := tokenize(text)
	lower := strings.ToLower(text)

	type scored struct {
		label    domain.Domain
		score    int
		evidence []string
	}
	results := make([]scored, 0, len(domainRules))
	for label, rules := range domainRules {
		s, ev := score(lower, tokens, rules)
		results = append(results, scored{label, s, ev})
	}
	// Deterministic order regardless of map iteration.
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].label < results[j].label
	})

	if results[0].score == 0 || (len(results) > 1 && results[0].score == results[1].score) {
		return domain.DomainUnknown, nil
	}
	return results[0].label, results[0].evidence
}

func intentOf(text string) (domain.Intent, []string) {
	tokens := tokenize(text)
	lower := strings.ToLower(text)

	type scored struct {
		label    domain.Intent
		score    int
		evidence []string
	}
	results := make([]scored, 0, len(intentRules))
	for label, rules := range intentRules {
		s, ev := score(lower, tokens, rules)
		results = append(results, scored{label, s, ev})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].label < results[j].label
	})

	if results[0].score == 0 || (len(results) > 1 && results[0].score == results[1].score) {
		return domain.IntentGeneral, nil
	}
	return results[0].label, results[0].evidence
}

// score sums weights of matched rules. Single-word patterns require a whole
// token match (allowing a trailing plural "s"); phrases match as substrings.
func score(lower string, tokens map[string]bool, rules []Rule) (int, []string) {
	total := 0
	var evidence []string
	for _, r := range rules {
		if matches(lower, tokens, r.Pattern) {
			total += r.Weight
			evidence = append(evidence, r.Pattern)
		}
	}
	return total, evidence
}

func matches(lower string, tokens map[string]bool, pattern string) bool {
	if strings.ContainsRune(pattern, ' ') {
		return strings.Contains(lower, pattern)
	}
	return tokens[pattern] || tokens[pattern+"s"]
}

func matchesAny(text string, rules []Rule) bool {
	tokens := tokenize(text)
	lower := strings.ToLower(text)
	for _, r := range rules {
		if matches(lower, tokens, r.Pattern) {
			return true
		}
	}
	return false
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}
