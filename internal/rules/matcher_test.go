package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/finbook/finbook/internal/database/repository"
)

func rule(id, field, op, pattern string, priority int, created time.Time) repository.CategoryRule {
	return repository.CategoryRule{
		ID:         id,
		UserID:     "u1",
		CategoryID: "cat-" + id,
		Field:      field,
		Operator:   op,
		Pattern:    pattern,
		Priority:   priority,
		Active:     true,
		CreatedAt:  created,
	}
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestOperators(t *testing.T) {
	t.Parallel()

	ctx := MatchContext{MerchantName: "  Starbucks  ", Description: "STARBUCKS COFFEE #123"}

	cases := []struct {
		name    string
		field   string
		op      string
		pattern string
		want    bool
	}{
		{"equals hit", repository.FieldMerchantName, repository.OpEquals, "starbucks", true},
		{"equals trims and lowercases", repository.FieldMerchantName, repository.OpEquals, " STARBUCKS ", true},
		{"equals miss", repository.FieldMerchantName, repository.OpEquals, "starbuck", false},
		{"contains hit", repository.FieldDescription, repository.OpContains, "coffee", true},
		{"contains miss", repository.FieldDescription, repository.OpContains, "tea", false},
		{"starts_with hit", repository.FieldDescription, repository.OpStartsWith, "starbucks", true},
		{"ends_with hit", repository.FieldDescription, repository.OpEndsWith, "#123", true},
		{"regex hit", repository.FieldDescription, repository.OpRegex, `#\d+$`, true},
		{"regex case-insensitive", repository.FieldDescription, repository.OpRegex, `STARBUCKS`, true},
		{"regex invalid never matches", repository.FieldDescription, repository.OpRegex, `([`, false},
		{"empty field never matches", repository.FieldMCC, repository.OpContains, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindBestRule(ctx, []repository.CategoryRule{rule("r1", tc.field, tc.op, tc.pattern, 10, t0)})
			if tc.want {
				require.NotNil(t, got)
			} else {
				require.Nil(t, got)
			}
		})
	}
}

func TestNoMatchIsNotAnError(t *testing.T) {
	t.Parallel()
	require.Nil(t, FindBestRule(MatchContext{}, nil))
	require.Nil(t, FindBestRule(MatchContext{Description: "anything"}, []repository.CategoryRule{}))
}

func TestInactiveRulesIgnored(t *testing.T) {
	t.Parallel()
	r := rule("r1", repository.FieldDescription, repository.OpContains, "coffee", 10, t0)
	r.Active = false
	require.Nil(t, FindBestRule(MatchContext{Description: "coffee run"}, []repository.CategoryRule{r}))
}

func TestPriorityDominates(t *testing.T) {
	t.Parallel()
	ctx := MatchContext{Description: "STARBUCKS COFFEE #123"}
	// lower priority wins even against a longer, more specific pattern
	loose := rule("loose", repository.FieldDescription, repository.OpContains, "star", 5, t0.Add(time.Hour))
	tight := rule("tight", repository.FieldDescription, repository.OpEquals, "starbucks coffee #123", 10, t0)
	got := FindBestRule(ctx, []repository.CategoryRule{tight, loose})
	require.NotNil(t, got)
	require.Equal(t, "loose", got.Rule.ID)
}

func TestSpecificityBreaksPriorityTie(t *testing.T) {
	t.Parallel()
	ctx := MatchContext{MerchantName: "Starbucks", Description: "STARBUCKS COFFEE #123"}
	merchant := rule("m", repository.FieldMerchantName, repository.OpEquals, "starbucks", 10, t0)
	desc := rule("d", repository.FieldDescription, repository.OpContains, "coffee", 10, t0)
	got := FindBestRule(ctx, []repository.CategoryRule{desc, merchant})
	require.NotNil(t, got)
	// equals base 400 + len 9 beats contains base 200 + len 6
	require.Equal(t, "m", got.Rule.ID)
}

func TestEqualsBeatsContainsAtSameLength(t *testing.T) {
	t.Parallel()
	ctx := MatchContext{Description: "coffee"}
	eq := rule("eq", repository.FieldDescription, repository.OpEquals, "coffee", 10, t0.Add(time.Hour))
	ct := rule("ct", repository.FieldDescription, repository.OpContains, "coffee", 10, t0)
	got := FindBestRule(ctx, []repository.CategoryRule{ct, eq})
	require.NotNil(t, got)
	require.Equal(t, "eq", got.Rule.ID)
}

func TestCreationTimeThenIDTiebreak(t *testing.T) {
	t.Parallel()
	ctx := MatchContext{Description: "coffee"}
	older := rule("b", repository.FieldDescription, repository.OpContains, "coffee", 10, t0)
	newer := rule("a", repository.FieldDescription, repository.OpContains, "coffee", 10, t0.Add(time.Minute))
	got := FindBestRule(ctx, []repository.CategoryRule{newer, older})
	require.NotNil(t, got)
	require.Equal(t, "b", got.Rule.ID, "earlier creation wins")

	sameTime := rule("a", repository.FieldDescription, repository.OpContains, "coffee", 10, t0)
	got = FindBestRule(ctx, []repository.CategoryRule{older, sameTime})
	require.NotNil(t, got)
	require.Equal(t, "a", got.Rule.ID, "lowest id wins the final tiebreak")
}

func TestMatcherIsDeterministic(t *testing.T) {
	t.Parallel()
	ctx := MatchContext{MerchantName: "Starbucks", Description: "STARBUCKS COFFEE #123", MCC: "5814"}
	ruleSet := []repository.CategoryRule{
		rule("r1", repository.FieldMerchantName, repository.OpEquals, "starbucks", 10, t0),
		rule("r2", repository.FieldDescription, repository.OpContains, "coffee", 10, t0),
		rule("r3", repository.FieldMCC, repository.OpEquals, "5814", 20, t0),
		rule("r4", repository.FieldDescription, repository.OpRegex, `#\d+`, 10, t0),
	}
	first := FindBestRule(ctx, ruleSet)
	require.NotNil(t, first)
	for i := 0; i < 50; i++ {
		again := FindBestRule(ctx, ruleSet)
		require.NotNil(t, again)
		require.Equal(t, first.Rule.ID, again.Rule.ID)
		require.Equal(t, first.Confidence, again.Confidence)
	}
}

func TestConfidence(t *testing.T) {
	t.Parallel()
	ctx := MatchContext{Description: "coffee"}

	eq := FindBestRule(ctx, []repository.CategoryRule{rule("r", repository.FieldDescription, repository.OpEquals, "coffee", 10, t0)})
	require.NotNil(t, eq)
	require.InDelta(t, 0.94, eq.Confidence, 1e-9)

	re := FindBestRule(ctx, []repository.CategoryRule{rule("r", repository.FieldDescription, repository.OpRegex, "coffee", 10, t0)})
	require.NotNil(t, re)
	require.InDelta(t, 0.76, re.Confidence, 1e-9)

	// high priority pushes confidence down but never below the floor
	low := FindBestRule(ctx, []repository.CategoryRule{rule("r", repository.FieldDescription, repository.OpRegex, "coffee", 500, t0)})
	require.NotNil(t, low)
	require.Equal(t, 0.55, low.Confidence)

	// negative-offset priority is clamped at the ceiling
	high := FindBestRule(ctx, []repository.CategoryRule{rule("r", repository.FieldDescription, repository.OpEquals, "coffee", -100, t0)})
	require.NotNil(t, high)
	require.Equal(t, 0.99, high.Confidence)
}
