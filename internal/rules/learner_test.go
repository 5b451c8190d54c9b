package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finbook/finbook/internal/database/repository"
)

func strp(s string) *string { return &s }

func TestLearnedCandidatePrecedence(t *testing.T) {
	t.Parallel()

	full := repository.Transaction{
		Description:      "STARBUCKS COFFEE #123",
		MerchantName:     strp("Starbucks"),
		MCC:              strp("5814"),
		UpstreamPrimary:  strp("FOOD_AND_DRINK"),
		UpstreamDetailed: strp("FOOD_AND_DRINK_COFFEE"),
	}

	cand := LearnedCandidate(full)
	require.NotNil(t, cand)
	require.Equal(t, repository.FieldMerchantName, cand.Field)
	require.Equal(t, repository.OpEquals, cand.Operator)
	require.Equal(t, "starbucks", cand.Pattern)
	require.Equal(t, 10, cand.Priority)

	full.MerchantName = nil
	cand = LearnedCandidate(full)
	require.NotNil(t, cand)
	require.Equal(t, repository.FieldDescription, cand.Field)
	require.Equal(t, "starbucks coffee #123", cand.Pattern)
	require.Equal(t, 20, cand.Priority)

	full.Description = "   "
	cand = LearnedCandidate(full)
	require.NotNil(t, cand)
	require.Equal(t, repository.FieldMCC, cand.Field)
	require.Equal(t, 30, cand.Priority)

	full.MCC = nil
	cand = LearnedCandidate(full)
	require.NotNil(t, cand)
	require.Equal(t, repository.FieldUpstreamDetailed, cand.Field)
	require.Equal(t, "food_and_drink_coffee", cand.Pattern)
	require.Equal(t, 40, cand.Priority)

	full.UpstreamDetailed = nil
	cand = LearnedCandidate(full)
	require.NotNil(t, cand)
	require.Equal(t, repository.FieldUpstreamPrimary, cand.Field)
	require.Equal(t, 50, cand.Priority)
}

func TestLearnedCandidateAllEmpty(t *testing.T) {
	t.Parallel()
	require.Nil(t, LearnedCandidate(repository.Transaction{Description: "  "}))
}

func TestLearnedCandidateMatchesItsSource(t *testing.T) {
	t.Parallel()
	tx := repository.Transaction{
		Description:  "DAN MURPHY'S/580 MELBOURN",
		MerchantName: strp("Dan Murphy's"),
	}
	cand := LearnedCandidate(tx)
	require.NotNil(t, cand)

	got := FindBestRule(ContextFromTransaction(tx, ""), []repository.CategoryRule{{
		ID:       "learned",
		Field:    cand.Field,
		Operator: cand.Operator,
		Pattern:  cand.Pattern,
		Priority: cand.Priority,
		Active:   true,
	}})
	require.NotNil(t, got)
	require.Equal(t, "learned", got.Rule.ID)
}
