package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/finbook/finbook/internal/audit"
	"github.com/finbook/finbook/internal/database"
	"github.com/finbook/finbook/internal/database/repository"
	"github.com/finbook/finbook/internal/metrics"
	"github.com/finbook/finbook/internal/secrets"
	"github.com/finbook/finbook/internal/upstream"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeUpstream serves a scripted cursor feed. pages is keyed by the cursor
// the client presents; failures[cursor] injects that many fetch errors
// before the page is served.
type fakeUpstream struct {
	pages    map[string]upstream.SyncPage
	failures map[string]int
	calls    []string
}

func (f *fakeUpstream) SyncTransactions(_ context.Context, _ string, cursor string) (upstream.SyncPage, error) {
	f.calls = append(f.calls, cursor)
	if f.failures[cursor] > 0 {
		f.failures[cursor]--
		return upstream.SyncPage{}, errors.New("upstream unavailable")
	}
	page, ok := f.pages[cursor]
	if !ok {
		return upstream.SyncPage{}, errors.New("unknown cursor")
	}
	return page, nil
}

func (f *fakeUpstream) GetTransactions(context.Context, string, upstream.DateRange, upstream.Paging) ([]upstream.Transaction, error) {
	return nil, nil
}

type harness struct {
	db       *sql.DB
	items    *repository.LinkedItemRepo
	txs      *repository.TransactionRepo
	cats     *repository.CategoryRepo
	rules    *repository.CategoryRuleRepo
	jobs     *repository.SyncJobRepo
	client   *fakeUpstream
	syncer   *Syncer
	syncSvc  *SyncService
	counters *metrics.Counters
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	cipher, err := secrets.NewCipher("test-master-key")
	require.NoError(t, err)

	h := &harness{
		db:       db,
		items:    repository.NewLinkedItemRepo(db),
		txs:      repository.NewTransactionRepo(db),
		cats:     repository.NewCategoryRepo(db),
		rules:    repository.NewCategoryRuleRepo(db),
		jobs:     repository.NewSyncJobRepo(db),
		client:   &fakeUpstream{pages: map[string]upstream.SyncPage{}, failures: map[string]int{}},
		counters: metrics.NewCounters(),
	}
	h.syncer = &Syncer{
		Items:        h.items,
		Transactions: h.txs,
		Categories:   h.cats,
		Rules:        h.rules,
		Upstream:     h.client,
		Cipher:       cipher,
		Audit:        audit.NewSQLSink(db),
		Metrics:      h.counters,
		Source:       "plaid",
	}
	h.syncSvc = &SyncService{
		Jobs:        h.jobs,
		Items:       h.items,
		Syncer:      h.syncer,
		Audit:       audit.NewSQLSink(db),
		Metrics:     h.counters,
		MaxAttempts: 3,
	}
	return h
}

func (h *harness) addItem(t *testing.T, userID, externalID string) repository.LinkedItem {
	t.Helper()
	token, err := h.syncer.Cipher.Encrypt("access-" + externalID)
	require.NoError(t, err)
	it := repository.LinkedItem{
		ID:          uuid.NewString(),
		UserID:      userID,
		ExternalID:  externalID,
		Institution: "Test Bank",
		AccessToken: token,
	}
	require.NoError(t, h.items.Upsert(context.Background(), it))
	stored, err := h.items.GetByExternalID(context.Background(), externalID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	return *stored
}

func upTx(externalID, description, merchant string, cents int64, detailed string) upstream.Transaction {
	return upstream.Transaction{
		ExternalID:       externalID,
		AccountID:        "acc-1",
		AccountName:      "Everyday Checking",
		AmountCents:      cents,
		ISOCurrency:      "USD",
		Date:             time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:      description,
		MerchantName:     merchant,
		DetailedCategory: detailed,
	}
}
