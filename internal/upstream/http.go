package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// HTTPClient is the production Client backed by the provider's REST API.
type HTTPClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
}

func NewHTTPClient(baseURL, clientID, clientSecret string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

type wireTransaction struct {
	TransactionID  string   `json:"transaction_id"`
	AccountID      string   `json:"account_id"`
	AccountName    string   `json:"account_name"`
	Amount         float64  `json:"amount"`
	ISOCurrency    *string  `json:"iso_currency_code"`
	Date           string   `json:"date"`
	AuthorizedDate *string  `json:"authorized_date"`
	Name           string   `json:"name"`
	MerchantName   *string  `json:"merchant_name"`
	MCC            *string  `json:"merchant_category_code"`
	Category       struct {
		Primary  string `json:"primary"`
		Detailed string `json:"detailed"`
	} `json:"personal_finance_category"`
	Pending bool `json:"pending"`
}

type syncResponse struct {
	Added      []wireTransaction `json:"added"`
	Modified   []wireTransaction `json:"modified"`
	Removed    []struct {
		TransactionID string `json:"transaction_id"`
	} `json:"removed"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func (c *HTTPClient) SyncTransactions(ctx context.Context, accessToken, cursor string) (SyncPage, error) {
	body := map[string]string{
		"client_id":    c.clientID,
		"secret":       c.clientSecret,
		"access_token": accessToken,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}
	var resp syncResponse
	if err := c.post(ctx, "/transactions/sync", body, &resp); err != nil {
		return SyncPage{}, err
	}
	page := SyncPage{NextCursor: resp.NextCursor, HasMore: resp.HasMore}
	for _, w := range resp.Added {
		page.Added = append(page.Added, fromWire(w))
	}
	for _, w := range resp.Modified {
		page.Modified = append(page.Modified, fromWire(w))
	}
	for _, rm := range resp.Removed {
		page.Removed = append(page.Removed, Removal{ExternalID: rm.TransactionID})
	}
	return page, nil
}

func (c *HTTPClient) GetTransactions(ctx context.Context, accessToken string, rng DateRange, paging Paging) ([]Transaction, error) {
	if paging.Count <= 0 {
		paging.Count = 100
	}
	body := map[string]interface{}{
		"client_id":    c.clientID,
		"secret":       c.clientSecret,
		"access_token": accessToken,
		"start_date":   rng.Start.Format(time.DateOnly),
		"end_date":     rng.End.Format(time.DateOnly),
		"options":      map[string]int{"count": paging.Count, "offset": paging.Offset},
	}
	var resp struct {
		Transactions []wireTransaction `json:"transactions"`
	}
	if err := c.post(ctx, "/transactions/get", body, &resp); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(resp.Transactions))
	for _, w := range resp.Transactions {
		out = append(out, fromWire(w))
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream %s: decode: %w", path, err)
	}
	return nil
}

func fromWire(w wireTransaction) Transaction {
	t := Transaction{
		ExternalID:       w.TransactionID,
		AccountID:        w.AccountID,
		AccountName:      w.AccountName,
		AmountCents:      int64(math.Round(w.Amount * 100)),
		ISOCurrency:      "USD",
		Description:      w.Name,
		PrimaryCategory:  w.Category.Primary,
		DetailedCategory: w.Category.Detailed,
		Pending:          w.Pending,
	}
	if w.ISOCurrency != nil && *w.ISOCurrency != "" {
		t.ISOCurrency = *w.ISOCurrency
	}
	if d, err := time.Parse(time.DateOnly, w.Date); err == nil {
		t.Date = d.UTC()
	}
	if w.AuthorizedDate != nil {
		if d, err := time.Parse(time.DateOnly, *w.AuthorizedDate); err == nil {
			d = d.UTC()
			t.AuthorizedDate = &d
		}
	}
	if w.MerchantName != nil {
		t.MerchantName = *w.MerchantName
	}
	if w.MCC != nil {
		t.MCC = *w.MCC
	}
	return t
}
