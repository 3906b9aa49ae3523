package feepolicy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blnkfinance/payroute/internal/request"
	"github.com/blnkfinance/payroute/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type tierResponse struct {
	Party string `json:"party"`
	Tier  uint32 `json:"tier"`
}

// HTTPResolver asks a reputation oracle for a party's tier at
// GET {BaseURL}/tiers/{party}. A 404 means the oracle knows the party has no
// standing and resolves to tier 0; transport errors and 5xx answers are
// retried a bounded number of times and then reported as unavailable.
type HTTPResolver struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64
	Headers    map[string]string
}

func NewHTTPResolver(baseURL string, timeout time.Duration, maxRetries uint64) *HTTPResolver {
	return &HTTPResolver{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}
}

func (h *HTTPResolver) ResolveTier(ctx context.Context, party string) (uint32, error) {
	if h.BaseURL == "" {
		return 0, errors.Wrap(model.ErrFeePolicyUnavailable, "oracle url is not configured")
	}
	endpoint := fmt.Sprintf("%s/tiers/%s", h.BaseURL, url.PathEscape(party))

	var tier uint32
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range h.Headers {
			req.Header.Set(k, v)
		}

		var resp tierResponse
		_, err = request.Call(req, &resp, h.Timeout)
		if err != nil {
			var statusErr *request.StatusError
			if errors.As(err, &statusErr) {
				if statusErr.StatusCode == http.StatusNotFound {
					tier = 0
					return nil
				}
				if statusErr.StatusCode < http.StatusInternalServerError {
					return backoff.Permanent(err)
				}
			}
			logrus.Warnf("tier lookup for %s failed: %v", party, err)
			return err
		}
		tier = resp.Tier
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), h.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return 0, errors.Wrapf(model.ErrFeePolicyUnavailable, "resolving tier for %s: %v", party, err)
	}
	return tier, nil
}
