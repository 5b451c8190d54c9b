package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finbook/finbook/internal/audit"
	"github.com/finbook/finbook/internal/database/repository"
	"github.com/finbook/finbook/internal/rules"
)

// RecategorizeService handles manual category decisions and the rule
// learning that hangs off them.
type RecategorizeService struct {
	Transactions *repository.TransactionRepo
	Categories   *repository.CategoryRepo
	Rules        *repository.CategoryRuleRepo
	Audit        audit.Sink
}

// SetCategory records a user decision on a transaction. The row's provenance
// becomes 'user', which shields it from upstream refreshes. When learn is
// set, a single rule candidate is derived from the transaction and inserted
// unless an identical active rule already exists.
func (s *RecategorizeService) SetCategory(ctx context.Context, txID, categoryID string, learn bool) error {
	tx, err := s.Transactions.Get(ctx, txID)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("transaction %s not found", txID)
	}
	cat, err := s.Categories.Get(ctx, categoryID)
	if err != nil {
		return err
	}
	if cat == nil || cat.UserID != tx.UserID {
		return fmt.Errorf("category %s not found", categoryID)
	}

	conf := 1.0
	if err := s.Transactions.SetCategory(ctx, tx.ID, &cat.ID, repository.ProvenanceUser, &conf); err != nil {
		return err
	}
	s.Audit.Record(ctx, tx.UserID, "transaction.recategorized", map[string]string{
		"transaction": tx.ID,
		"category":    cat.ID,
	})

	if !learn {
		return nil
	}
	cand := rules.LearnedCandidate(*tx)
	if cand == nil {
		return nil
	}
	txRef := tx.ID
	inserted, err := s.Rules.InsertIfAbsent(ctx, repository.CategoryRule{
		ID:          uuid.NewString(),
		UserID:      tx.UserID,
		CategoryID:  cat.ID,
		Field:       cand.Field,
		Operator:    cand.Operator,
		Pattern:     cand.Pattern,
		Priority:    cand.Priority,
		Active:      true,
		Source:      "learned",
		LearnedFrom: &txRef,
	})
	if err != nil {
		return err
	}
	if inserted {
		s.Audit.Record(ctx, tx.UserID, "rule.learned", map[string]string{
			"transaction": tx.ID,
			"field":       cand.Field,
			"pattern":     cand.Pattern,
		})
	}
	return nil
}
