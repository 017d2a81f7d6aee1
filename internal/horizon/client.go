// Package horizon is a minimal client for the Stellar Horizon API, covering
// the two lookups the reconciler needs: destination account status on the
// deposit path, and payment records for withdrawal transactions.
package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kingdavid6336/stellar-anchor/internal/chain/ratelimit"
)

// ErrNotFound is returned for Horizon 404 responses.
var ErrNotFound = errors.New("horizon: resource not found")

const assetTypeNative = "native"

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "horizon"),
	}
}

// AccountStatus describes a destination account on the Stellar ledger.
type AccountStatus struct {
	Exists bool
	Trusts bool
}

type accountResponse struct {
	ID       string           `json:"id"`
	Balances []accountBalance `json:"balances"`
}

type accountBalance struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

// CheckAccount reports whether the account exists and holds a trustline for
// asset:issuer. A 404 means the account is not funded yet; that is a normal
// answer, not an error. Native XLM needs no trustline.
func (c *Client) CheckAccount(ctx context.Context, address, assetCode, issuer string) (AccountStatus, error) {
	var account accountResponse
	err := c.get(ctx, "/accounts/"+url.PathEscape(address), &account)
	if errors.Is(err, ErrNotFound) {
		return AccountStatus{Exists: false, Trusts: false}, nil
	}
	if err != nil {
		return AccountStatus{}, fmt.Errorf("check account %s: %w", address, err)
	}

	status := AccountStatus{Exists: true}
	for _, b := range account.Balances {
		if b.AssetType == assetTypeNative && issuer == "" {
			status.Trusts = true
			break
		}
		if b.AssetCode == assetCode && b.AssetIssuer == issuer {
			status.Trusts = true
			break
		}
	}
	return status, nil
}

// Payment is one payment-ish operation inside a Stellar transaction.
type Payment struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	TransactionHash string `json:"transaction_hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code"`
	AssetIssuer     string `json:"asset_issuer"`
	Amount          string `json:"amount"`
}

// TransactionRecord holds the transaction-level fields the reconciler needs.
type TransactionRecord struct {
	Hash       string `json:"hash"`
	Ledger     int64  `json:"ledger"`
	Successful bool   `json:"successful"`
	Memo       string `json:"memo"`
	MemoType   string `json:"memo_type"`
}

type paymentsPage struct {
	Embedded struct {
		Records []Payment `json:"records"`
	} `json:"_embedded"`
}

// Transaction fetches a transaction by hash. Returns ErrNotFound when
// Horizon has not ingested it.
func (c *Client) Transaction(ctx context.Context, txHash string) (*TransactionRecord, error) {
	var record TransactionRecord
	if err := c.get(ctx, "/transactions/"+url.PathEscape(txHash), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// TransactionPayments lists the payment operations of a transaction in
// operation order.
func (c *Client) TransactionPayments(ctx context.Context, txHash string) ([]Payment, error) {
	var page paymentsPage
	if err := c.get(ctx, "/transactions/"+url.PathEscape(txHash)+"/payments?limit=200", &page); err != nil {
		return nil, err
	}
	return page.Embedded.Records, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	ratelimit.RecordRPCCall("stellar", "GET "+path, err)
	if err != nil {
		return fmt.Errorf("horizon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("horizon status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
