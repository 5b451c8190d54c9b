package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/finbook/finbook/internal/audit"
	"github.com/finbook/finbook/internal/database/repository"
	"github.com/finbook/finbook/internal/logger"
	"github.com/finbook/finbook/internal/metrics"
	"github.com/finbook/finbook/internal/rules"
	"github.com/finbook/finbook/internal/secrets"
	"github.com/finbook/finbook/internal/upstream"
)

// Syncer reconciles the upstream cursor feed into local transaction storage.
type Syncer struct {
	Items        *repository.LinkedItemRepo
	Transactions *repository.TransactionRepo
	Categories   *repository.CategoryRepo
	Rules        *repository.CategoryRuleRepo
	Upstream     upstream.Client
	Cipher       *secrets.Cipher
	Audit        audit.Sink
	Metrics      *metrics.Counters

	// Source tags local rows with the upstream feed they came from; part of
	// the (source, external_id) transaction key.
	Source string
}

// SyncStats summarizes one synchronous sync call.
type SyncStats struct {
	SyncedItems int
	Added       int
	Modified    int
	Removed     int
}

// RunIncrementalSync reconciles every linked item for the user, or just the
// one named by itemExternalID. Returns ErrNoLinkedItem when nothing is
// linked.
func (s *Syncer) RunIncrementalSync(ctx context.Context, userID, itemExternalID string) (SyncStats, error) {
	var items []repository.LinkedItem
	if itemExternalID != "" {
		it, err := s.Items.GetByExternalID(ctx, itemExternalID)
		if err != nil {
			return SyncStats{}, err
		}
		if it == nil || it.UserID != userID {
			return SyncStats{}, ErrNoLinkedItem
		}
		items = []repository.LinkedItem{*it}
	} else {
		var err error
		items, err = s.Items.ListByUser(ctx, userID)
		if err != nil {
			return SyncStats{}, err
		}
		if len(items) == 0 {
			return SyncStats{}, ErrNoLinkedItem
		}
	}

	stats := SyncStats{}
	for _, it := range items {
		itemStats, err := s.SyncItem(ctx, it)
		if err != nil {
			return stats, err
		}
		stats.SyncedItems++
		stats.Added += itemStats.Added
		stats.Modified += itemStats.Modified
		stats.Removed += itemStats.Removed
	}
	return stats, nil
}

// ItemStats summarizes one item's reconciliation run.
type ItemStats struct {
	Added    int
	Modified int
	Removed  int
}

// SyncItem walks the upstream cursor feed for one item and applies every page
// to local storage. The cursor is persisted only after the full page loop
// completes. A single page-fetch failure with a cursor set clears the cursor
// and restarts from the beginning once; a second failure aborts the run.
func (s *Syncer) SyncItem(ctx context.Context, item repository.LinkedItem) (ItemStats, error) {
	log := logger.FromContext(ctx).With().Str("item", item.ExternalID).Logger()

	token := item.AccessToken
	if s.Cipher != nil {
		var err error
		token, err = s.Cipher.Decrypt(item.AccessToken)
		if err != nil {
			return ItemStats{}, fmt.Errorf("decrypt access token: %w", err)
		}
	}

	ruleSet, err := s.Rules.ActiveByUser(ctx, item.UserID)
	if err != nil {
		return ItemStats{}, err
	}

	cursor := ""
	if item.Cursor != nil {
		cursor = *item.Cursor
	}

	stats := ItemStats{}
	retriedFromStart := false
	for {
		page, err := s.Upstream.SyncTransactions(ctx, token, cursor)
		if err != nil {
			if cursor != "" && !retriedFromStart {
				// cursor drift: reset and walk the feed from the beginning once
				log.Warn().Err(err).Msg("cursor rejected, restarting from beginning")
				if clearErr := s.Items.ClearCursor(ctx, item.ID); clearErr != nil {
					return stats, clearErr
				}
				s.Audit.Record(ctx, item.UserID, "sync.cursor.reset", map[string]string{"item": item.ExternalID})
				cursor = ""
				retriedFromStart = true
				stats = ItemStats{}
				continue
			}
			return stats, fmt.Errorf("sync page fetch: %w", err)
		}

		for _, ut := range page.Added {
			if err := s.applyUpstream(ctx, item, ut, ruleSet); err != nil {
				return stats, err
			}
			stats.Added++
		}
		for _, ut := range page.Modified {
			if err := s.applyUpstream(ctx, item, ut, ruleSet); err != nil {
				return stats, err
			}
			stats.Modified++
		}
		for _, rm := range page.Removed {
			deleted, err := s.Transactions.DeleteByExternal(ctx, s.Source, rm.ExternalID)
			if err != nil {
				return stats, err
			}
			if deleted {
				stats.Removed++
			}
		}

		cursor = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	if err := s.Items.SetCursor(ctx, item.ID, cursor); err != nil {
		return stats, err
	}

	s.Metrics.Add(metrics.TxAdded, int64(stats.Added))
	s.Metrics.Add(metrics.TxModified, int64(stats.Modified))
	s.Metrics.Add(metrics.TxRemoved, int64(stats.Removed))
	log.Info().Int("added", stats.Added).Int("modified", stats.Modified).Int("removed", stats.Removed).Msg("item reconciled")
	return stats, nil
}

// applyUpstream upserts one upstream record. The upsert itself enforces the
// provenance shield; this method only decides what the system would assign.
func (s *Syncer) applyUpstream(ctx context.Context, item repository.LinkedItem, ut upstream.Transaction, ruleSet []repository.CategoryRule) error {
	t := repository.Transaction{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte("txn:"+s.Source+":"+ut.ExternalID)).String(),
		UserID:         item.UserID,
		ItemID:         item.ID,
		Source:         s.Source,
		ExternalID:     ut.ExternalID,
		AmountCents:    ut.AmountCents,
		ISOCurrency:    ut.ISOCurrency,
		Date:           ut.Date,
		AuthorizedDate: ut.AuthorizedDate,
		Description:    ut.Description,
		Pending:        ut.Pending,
		CategorySource: repository.ProvenanceSystem,
	}
	if ut.MerchantName != "" {
		m := ut.MerchantName
		t.MerchantName = &m
	}
	if ut.MCC != "" {
		m := ut.MCC
		t.MCC = &m
	}
	if ut.PrimaryCategory != "" {
		p := ut.PrimaryCategory
		t.UpstreamPrimary = &p
	}
	if ut.DetailedCategory != "" {
		d := ut.DetailedCategory
		t.UpstreamDetailed = &d
	}

	if label := NormalizeLabel(firstNonEmpty(ut.DetailedCategory, ut.PrimaryCategory)); label != "" {
		cat, err := s.categoryForLabel(ctx, item.UserID, label)
		if err != nil {
			return err
		}
		t.CategoryID = &cat.ID
	}

	if err := s.Transactions.Upsert(ctx, t); err != nil {
		return fmt.Errorf("upsert transaction %s: %w", ut.ExternalID, err)
	}

	return s.categorizeByRules(ctx, item, ut, ruleSet)
}

// categorizeByRules promotes a system-provenance transaction to rule
// provenance when an active rule matches. The provenance check is part of the
// promotion UPDATE itself, so a user decision that lands concurrently is
// never overwritten; the read here only skips obvious non-candidates.
func (s *Syncer) categorizeByRules(ctx context.Context, item repository.LinkedItem, ut upstream.Transaction, ruleSet []repository.CategoryRule) error {
	if len(ruleSet) == 0 {
		return nil
	}
	stored, err := s.Transactions.GetByExternal(ctx, s.Source, ut.ExternalID)
	if err != nil || stored == nil {
		return err
	}
	if stored.CategorySource != repository.ProvenanceSystem {
		return nil
	}
	match := rules.FindBestRule(rules.MatchContext{
		MerchantName:     ut.MerchantName,
		Description:      ut.Description,
		AccountName:      ut.AccountName,
		MCC:              ut.MCC,
		UpstreamPrimary:  ut.PrimaryCategory,
		UpstreamDetailed: ut.DetailedCategory,
	}, ruleSet)
	if match == nil {
		return nil
	}
	_, err = s.Transactions.PromoteToRule(ctx, stored.ID, match.Rule.CategoryID, match.Confidence)
	return err
}

// categoryForLabel resolves the system category for a normalized upstream
// label. An existing category within edit distance 1 of the label is reused
// so upstream label jitter does not mint near-duplicates; otherwise the
// keyed system upsert creates it.
func (s *Syncer) categoryForLabel(ctx context.Context, userID, label string) (repository.Category, error) {
	existing, err := s.Categories.List(ctx, userID)
	if err != nil {
		return repository.Category{}, err
	}
	var fuzzy *repository.Category
	for i, c := range existing {
		if strings.EqualFold(c.Name, label) {
			return c, nil
		}
		if fuzzy == nil && levenshtein.ComputeDistance(strings.ToLower(c.Name), strings.ToLower(label)) <= 1 {
			fuzzy = &existing[i]
		}
	}
	if fuzzy != nil {
		return *fuzzy, nil
	}
	return s.Categories.EnsureSystem(ctx, userID, label)
}

// NormalizeLabel turns an upstream category label like
// "FOOD_AND_DRINK_COFFEE" into the canonical display form "Food And Drink
// Coffee".
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	words := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
		return r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
