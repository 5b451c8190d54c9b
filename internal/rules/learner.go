package rules

import (
	"github.com/finbook/finbook/internal/database/repository"
)

// Candidate is a rule derived from a manually recategorized transaction.
// Insertion is the caller's job (conditional, see CategoryRuleRepo).
type Candidate struct {
	Field    string
	Operator string
	Pattern  string
	Priority int
}

// learnedFields is the fixed precedence for deriving a candidate: the most
// identifying field available wins, and its priority reflects that rank so
// merchant-derived rules outrank label-derived ones at match time.
var learnedFields = []struct {
	field    string
	priority int
}{
	{repository.FieldMerchantName, 10},
	{repository.FieldDescription, 20},
	{repository.FieldMCC, 30},
	{repository.FieldUpstreamDetailed, 40},
	{repository.FieldUpstreamPrimary, 50},
}

// LearnedCandidate derives at most one equals-rule candidate from the source
// transaction. Returns nil when every usable field is empty.
func LearnedCandidate(t repository.Transaction) *Candidate {
	ctx := ContextFromTransaction(t, "")
	for _, lf := range learnedFields {
		pattern := Normalize(fieldValue(lf.field, ctx))
		if pattern == "" {
			continue
		}
		return &Candidate{
			Field:    lf.field,
			Operator: repository.OpEquals,
			Pattern:  pattern,
			Priority: lf.priority,
		}
	}
	return nil
}

// ContextFromTransaction builds the matching context for a stored
// transaction. accountName is supplied by the caller since transactions only
// hold an item reference.
func ContextFromTransaction(t repository.Transaction, accountName string) MatchContext {
	ctx := MatchContext{
		Description: t.Description,
		AccountName: accountName,
	}
	if t.MerchantName != nil {
		ctx.MerchantName = *t.MerchantName
	}
	if t.MCC != nil {
		ctx.MCC = *t.MCC
	}
	if t.UpstreamPrimary != nil {
		ctx.UpstreamPrimary = *t.UpstreamPrimary
	}
	if t.UpstreamDetailed != nil {
		ctx.UpstreamDetailed = *t.UpstreamDetailed
	}
	return ctx
}
