package postcode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"stockpoint/internal/logger"

	"go.uber.org/zap"
)

// Address is what the lookup service returns for a postcode.
type Address struct {
	Postcode string `json:"postcode"`
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
}

var postcodeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{2,9}$`)

// Valid is the boundary check for shopper-entered postcodes.
func Valid(code string) bool {
	return postcodeRe.MatchString(strings.TrimSpace(code))
}

// Client queries a third-party address-lookup service. The lookup sits on
// the checkout path, so it carries a short timeout and every failure is
// "no data", never an error that blocks the shopper.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

func New(baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Lookup resolves a postcode to an address. Returns nil on any failure.
func (c *Client) Lookup(ctx context.Context, code string) *Address {
	if c.baseURL == "" || !Valid(code) {
		return nil
	}

	url := fmt.Sprintf("%s/%s/json", c.baseURL, strings.TrimSpace(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("postcode lookup failed", zap.String("postcode", code), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var addr Address
	if err := json.NewDecoder(resp.Body).Decode(&addr); err != nil {
		return nil
	}
	if addr.Postcode == "" {
		addr.Postcode = strings.TrimSpace(code)
	}
	return &addr
}
