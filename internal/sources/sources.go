package sources

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"linkwatch/internal/retry"
	logx "linkwatch/pkg/logx"
)

const (
	requestTimeout = 30 * time.Second
	userAgent      = "linkwatch/1.0"
)

// Item is one piece of content surfaced by a source. The URL is canonical and
// doubles as the dedup key; items themselves are never persisted.
type Item struct {
	URL    string
	Source string
}

// Source is the capability "what is newest right now" for one origin.
// Implementations never consult or write the dedup store; that is the
// poller's concern.
type Source interface {
	Name() string

	// Latest returns the single most recent qualifying item. ok is false
	// when the origin has nothing qualifying this cycle; that is not an
	// error.
	Latest(ctx context.Context) (item Item, ok bool, err error)
}

// Client bundles the HTTP client shared by all adapters.
type Client struct {
	http *http.Client
	log  logx.Logger
}

func NewClient(log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http: &http.Client{Timeout: requestTimeout},
		log:  log,
	}
}

func (c *Client) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.http.Do(req)
}

// fetchResult lets retry.Do carry the (item, ok) pair through its generic
// return value.
type fetchResult struct {
	item Item
	ok   bool
}

// latestWithRetry wraps one adapter fetch in the standard source retry
// policy: 3 attempts, 2s initial delay, doubling, transport errors only.
func latestWithRetry(ctx context.Context, log logx.Logger, name string, fn func(ctx context.Context) (Item, bool, error)) (Item, bool, error) {
	res, err := retry.Do(ctx, retry.Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Factor:       2,
		Retryable:    isTransient,
		Log:          log,
		Name:         name,
	}, func(ctx context.Context) (fetchResult, error) {
		item, ok, err := fn(ctx)
		return fetchResult{item: item, ok: ok}, err
	})
	if err != nil {
		return Item{}, false, err
	}
	return res.item, res.ok, nil
}

// isTransient reports whether err looks like a transport/timeout failure
// worth retrying. Origin rejections (non-2xx) never reach here; adapters
// resolve those to "no item" instead of an error.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func drainBody(r *http.Response) string {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 2048))
	if err != nil {
		return ""
	}
	return string(b)
}
