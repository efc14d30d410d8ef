// Package resolver resolves bank account holder names through the payments
// provider's HTTP API.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/referralhub/internal/banking/domain"
	"github.com/smallbiznis/referralhub/internal/config"
	"go.uber.org/zap"
)

const maxTries = 3

type HTTPResolver struct {
	baseURL   string
	secretKey string
	client    *http.Client
	log       *zap.Logger

	initialInterval time.Duration
}

type resolveResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
	} `json:"data"`
}

func New(cfg config.Config, log *zap.Logger) domain.Resolver {
	return NewHTTPResolver(cfg.Bank.BaseURL, cfg.Bank.SecretKey, &http.Client{Timeout: 10 * time.Second}, log)
}

func NewHTTPResolver(baseURL, secretKey string, client *http.Client, log *zap.Logger) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResolver{
		baseURL:         strings.TrimRight(baseURL, "/"),
		secretKey:       secretKey,
		client:          client,
		log:             log.Named("banking.resolver"),
		initialInterval: 200 * time.Millisecond,
	}
}

// Resolve retries transport errors and 5xx responses with exponential
// backoff. A 4xx answer means the account does not exist.
func (r *HTTPResolver) Resolve(ctx context.Context, bankCode, accountNumber string) (string, error) {
	query := url.Values{}
	query.Set("account_number", accountNumber)
	query.Set("bank_code", bankCode)
	endpoint := r.baseURL + "/bank/resolve?" + query.Encode()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval

	name, err := backoff.Retry(ctx, func() (string, error) {
		return r.resolveOnce(ctx, endpoint)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("bank lookup failed, retrying", zap.Duration("next", next), zap.Error(err))
		}),
	)
	if err == nil {
		return name, nil
	}
	if errors.Is(err, domain.ErrAccountNotResolved) {
		return "", err
	}
	return "", fmt.Errorf("%w: %v", domain.ErrLookupUnavailable, err)
}

func (r *HTTPResolver) resolveOnce(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+r.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", fmt.Errorf("bank lookup returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("bank lookup throttled")
	case resp.StatusCode >= http.StatusBadRequest:
		return "", backoff.Permanent(domain.ErrAccountNotResolved)
	}

	var payload resolveResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode bank lookup response: %w", err))
	}
	name := strings.TrimSpace(payload.Data.AccountName)
	if !payload.Status || name == "" {
		return "", backoff.Permanent(domain.ErrAccountNotResolved)
	}
	return name, nil
}
