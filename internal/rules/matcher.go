// Package rules implements deterministic rule matching and rule learning.
// Both entry points are pure functions over an in-memory rule snapshot; they
// never touch storage and never return errors.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/finbook/finbook/internal/database/repository"
)

// MatchContext carries the normalized fields a rule predicate can target.
type MatchContext struct {
	MerchantName     string
	Description      string
	AccountName      string
	MCC              string
	UpstreamPrimary  string
	UpstreamDetailed string
}

// Match is a winning rule plus its derived confidence. Confidence is
// informational metadata; it plays no part in selection.
type Match struct {
	Rule       repository.CategoryRule
	Confidence float64
}

// FindBestRule evaluates ctx against the active rule snapshot and returns the
// single best match, or nil when no rule matches. Selection is a total order:
// lowest priority, then highest specificity score, then earliest creation,
// then lowest id. Repeated calls with the same inputs return the same rule.
func FindBestRule(ctx MatchContext, ruleSet []repository.CategoryRule) *Match {
	var matched []repository.CategoryRule
	for _, r := range ruleSet {
		if !r.Active {
			continue
		}
		if ruleMatches(r, ctx) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		sa, sb := specificity(a), specificity(b)
		if sa != sb {
			return sa > sb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	win := matched[0]
	return &Match{Rule: win, Confidence: confidence(win)}
}

func ruleMatches(r repository.CategoryRule, ctx MatchContext) bool {
	value := Normalize(fieldValue(r.Field, ctx))
	if value == "" {
		return false
	}
	pattern := Normalize(r.Pattern)
	switch r.Operator {
	case repository.OpEquals:
		return value == pattern
	case repository.OpContains:
		return strings.Contains(value, pattern)
	case repository.OpStartsWith:
		return strings.HasPrefix(value, pattern)
	case repository.OpEndsWith:
		return strings.HasSuffix(value, pattern)
	case repository.OpRegex:
		re, err := regexp.Compile("(?i)" + strings.TrimSpace(r.Pattern))
		if err != nil {
			// invalid pattern never matches and never propagates
			return false
		}
		return re.MatchString(value)
	}
	return false
}

func fieldValue(field string, ctx MatchContext) string {
	switch field {
	case repository.FieldMerchantName:
		return ctx.MerchantName
	case repository.FieldDescription:
		return ctx.Description
	case repository.FieldAccountName:
		return ctx.AccountName
	case repository.FieldMCC:
		return ctx.MCC
	case repository.FieldUpstreamPrimary:
		return ctx.UpstreamPrimary
	case repository.FieldUpstreamDetailed:
		return ctx.UpstreamDetailed
	}
	return ""
}

// specificity ranks how narrow a predicate is: operator class base plus
// pattern length, so equality on a long pattern beats a loose contains.
func specificity(r repository.CategoryRule) int {
	base := 0
	switch r.Operator {
	case repository.OpEquals:
		base = 400
	case repository.OpStartsWith, repository.OpEndsWith:
		base = 300
	case repository.OpContains:
		base = 200
	case repository.OpRegex:
		base = 100
	}
	return base + len(Normalize(r.Pattern))
}

func confidence(r repository.CategoryRule) float64 {
	var base float64
	switch r.Operator {
	case repository.OpEquals:
		base = 0.94
	case repository.OpStartsWith, repository.OpEndsWith:
		base = 0.88
	case repository.OpContains:
		base = 0.82
	case repository.OpRegex:
		base = 0.76
	default:
		base = 0.76
	}
	c := base - 0.005*float64(r.Priority-10)
	if c < 0.55 {
		c = 0.55
	}
	if c > 0.99 {
		c = 0.99
	}
	return c
}

// Normalize is the comparison form used throughout matching and learning:
// whitespace-trimmed, lowercased.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
