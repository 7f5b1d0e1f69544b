// Package external is the HTTP client for the third-party relationship CRM:
// paginated collection fetches inbound, entity pushes outbound.
package external

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-resty/resty/v2"
)

// Collection names on the external service
const (
	CollectionInvestors = "investors"
	CollectionFirms     = "firms"
	CollectionContacts  = "contacts"
)

// CollectionForKind maps an entity kind onto its external collection
func CollectionForKind(kind string) (string, error) {
	switch kind {
	case "investor":
		return CollectionInvestors, nil
	case "firm":
		return CollectionFirms, nil
	case "contact":
		return CollectionContacts, nil
	}
	return "", fmt.Errorf("no external collection for entity kind %q", kind)
}

// Config holds external CRM client configuration
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
	PageLimit  int
}

// Client wraps a resty client configured for the external CRM
type Client struct {
	http      *resty.Client
	logger    ectologger.Logger
	pageLimit int
}

// NewClient creates a new external CRM client. Transport-level retry is
// bounded and only fires on throttling or server errors; application-level
// pagination failures still surface to the caller immediately.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}

	return &Client{
		http:      httpClient,
		logger:    logger,
		pageLimit: pageLimit,
	}
}
