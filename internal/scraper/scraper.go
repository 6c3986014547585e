package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrInvalidURL       = errors.New("invalid search URL")
	ErrNavigationFailed = errors.New("navigation failed")
	ErrNoProducts       = errors.New("no products found")
	ErrPriceUnresolved  = errors.New("price not resolved for selection")
	ErrLimitReached     = errors.New("collection limit reached")
	ErrBlocked          = errors.New("blocked by anti-bot challenge")
)

// Session is the single sequential rendering session every collector drives.
// One page at a time, one state at a time. Snapshots feed the parser, the
// interaction methods mutate page state between snapshots.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Snapshot() (string, error)
	CurrentURL() string
	TriggerIncrementalLoad(d time.Duration)
	WaitVisible(selector string, timeout time.Duration) error
	SelectVariant(dimension, option string) error
	NextReviewPage() (bool, error)
	ClickIfPresent(selector string) (bool, error)
}

// buildPageURL sets the page query parameter on a search URL. Page 1 keeps
// the URL untouched so the first request matches what the user supplied.
func buildPageURL(rawURL string, page int) (string, error) {
	if page <= 1 {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
