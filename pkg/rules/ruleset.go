// Package rules selects filter rules from raw list content, folds them into
// per-source sets, appends them to the output artifact and removes excluded
// lines at the end of a cycle.
package rules

import "sort"

// RuleSet stores normalized rules, unique by exact text.
type RuleSet struct {
	rules map[string]struct{}
}

// NewRuleSet creates an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[string]struct{})}
}

// Add inserts rule and reports whether it was new.
func (s *RuleSet) Add(rule string) bool {
	if _, ok := s.rules[rule]; ok {
		return false
	}
	s.rules[rule] = struct{}{}
	return true
}

// Contains reports whether rule is in the set.
func (s *RuleSet) Contains(rule string) bool {
	if s == nil {
		return false
	}
	_, ok := s.rules[rule]
	return ok
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Rules returns the rules as a slice. Order is lexical when sorted is true
// and unspecified otherwise.
func (s *RuleSet) Rules(sorted bool) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.rules))
	for rule := range s.rules {
		out = append(out, rule)
	}
	if sorted {
		sort.Strings(out)
	}
	return out
}
