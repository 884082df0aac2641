package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/kjstillabower/snowday-predictor/internal/models"
	"github.com/kjstillabower/snowday-predictor/internal/observability"
)

// ErrFeedUnavailable is returned when the alert feed's root listing for the
// current date cannot be fetched at all. Failures below the root (one
// office, one document) are isolated, logged and skipped.
var ErrFeedUnavailable = errors.New("alert feed unavailable")

const capSuffix = ".cap"

// Source provides the currently active alerts covering a coordinate.
type Source interface {
	AlertsForCoordinates(ctx context.Context, lat, lon float64) ([]models.Alert, error)
}

// Fetcher scrapes the provider's date-partitioned directory tree of CAP
// documents and answers point queries against the parsed alerts.
type Fetcher struct {
	baseURL       string
	language      string
	buffer        float64
	maxConcurrent int
	client        *http.Client
	clock         clockwork.Clock
	logger        *zap.Logger
	cache         Cache
	cacheTTL      time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock swaps the time source (tests).
func WithClock(c clockwork.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// WithCache attaches a short-TTL cache for the scraped alert set. The
// directory walk is dozens of sequential requests; caching one scrape per
// TTL keeps prediction latency sane without risking stale validity, since
// expiry is re-checked on every query.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithMaxConcurrent bounds the per-office fan-out.
func WithMaxConcurrent(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxConcurrent = n
		}
	}
}

// NewFetcher returns a Fetcher. buffer is the polygon tolerance in degrees.
func NewFetcher(baseURL, language string, buffer float64, timeout time.Duration, logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:       strings.TrimRight(baseURL, "/"),
		language:      language,
		buffer:        buffer,
		maxConcurrent: 8,
		client:        &http.Client{Timeout: timeout},
		clock:         clockwork.NewRealClock(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AlertsForCoordinates returns the currently valid alerts whose coverage
// area contains the query point. Expiry is re-checked against now even for
// cached alert sets; an expired alert is never returned as active.
func (f *Fetcher) AlertsForCoordinates(ctx context.Context, lat, lon float64) ([]models.Alert, error) {
	all, err := f.activeAlerts(ctx)
	if err != nil {
		return nil, err
	}

	now := f.clock.Now()
	var matched []models.Alert
	for _, alert := range all {
		if alert.Expired(now) {
			continue
		}
		if Covers(alert, lat, lon, f.buffer) {
			matched = append(matched, alert)
		}
	}
	return matched, nil
}

// activeAlerts returns the day's parsed alert set, from cache when fresh.
func (f *Fetcher) activeAlerts(ctx context.Context) ([]models.Alert, error) {
	date := f.clock.Now().UTC().Format("20060102")
	cacheKey := "alerts:" + date

	if f.cache != nil {
		cached, ok, err := f.cache.Get(ctx, cacheKey)
		if err != nil {
			f.logger.Warn("alert cache get failed", zap.Error(err))
		} else if ok {
			observability.AlertCacheHitsTotal.Inc()
			return cached, nil
		}
	}

	alerts, err := f.scrape(ctx, date)
	if err != nil {
		observability.AlertFeedFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.AlertFeedFetchesTotal.WithLabelValues("success").Inc()

	if f.cache != nil {
		if err := f.cache.Set(ctx, cacheKey, alerts, f.cacheTTL); err != nil {
			f.logger.Warn("alert cache set failed", zap.Error(err))
		}
	}
	return alerts, nil
}

// scrape walks date root -> office dirs -> newest time dir -> cap documents.
// Offices are fetched concurrently; one office's failure is logged and
// contributes nothing.
func (f *Fetcher) scrape(ctx context.Context, date string) ([]models.Alert, error) {
	root := fmt.Sprintf("%s/%s/WXO-DD/alerts/cap/%s/", f.baseURL, date, date)

	links, err := f.listLinks(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrFeedUnavailable, root, err)
	}

	var offices []string
	for _, href := range links {
		if strings.HasPrefix(href, "C") && strings.HasSuffix(href, "/") {
			offices = append(offices, root+href)
		}
	}

	var (
		mu     sync.Mutex
		all    []models.Alert
		wg     sync.WaitGroup
		tokens = make(chan struct{}, f.maxConcurrent)
	)
	for _, officeURL := range offices {
		wg.Add(1)
		go func(officeURL string) {
			defer wg.Done()
			tokens <- struct{}{}
			defer func() { <-tokens }()

			alerts, err := f.fetchOffice(ctx, officeURL)
			if err != nil {
				observability.AlertOfficeErrorsTotal.Inc()
				f.logger.Warn("office fetch failed", zap.String("office", officeURL), zap.Error(err))
				return
			}
			mu.Lock()
			all = append(all, alerts...)
			mu.Unlock()
		}(officeURL)
	}
	wg.Wait()
	return all, nil
}

// fetchOffice applies the most-recent-bulletin-wins policy: only documents
// under the office's newest time directory are read.
func (f *Fetcher) fetchOffice(ctx context.Context, officeURL string) ([]models.Alert, error) {
	links, err := f.listLinks(ctx, officeURL)
	if err != nil {
		return nil, fmt.Errorf("list office: %w", err)
	}

	var timeDirs []string
	for _, href := range links {
		name := strings.TrimSuffix(href, "/")
		if strings.HasSuffix(href, "/") && isDigits(name) {
			timeDirs = append(timeDirs, href)
		}
	}
	if len(timeDirs) == 0 {
		return nil, nil
	}
	sort.Strings(timeDirs)
	latest := officeURL + timeDirs[len(timeDirs)-1]

	links, err = f.listLinks(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("list bulletin: %w", err)
	}

	now := f.clock.Now()
	var alerts []models.Alert
	for _, href := range links {
		if !strings.HasSuffix(href, capSuffix) {
			continue
		}
		data, err := f.get(ctx, latest+href)
		if err != nil {
			f.logger.Warn("alert document fetch failed", zap.String("url", latest+href), zap.Error(err))
			continue
		}
		parsed, err := parseCAP(data, f.language, now)
		if err != nil {
			f.logger.Warn("alert document parse failed", zap.String("url", latest+href), zap.Error(err))
			continue
		}
		observability.AlertDocumentsParsedTotal.Inc()
		alerts = append(alerts, parsed...)
	}
	return alerts, nil
}

// listLinks fetches a directory-listing page and returns its anchor hrefs.
func (f *Fetcher) listLinks(ctx context.Context, url string) ([]string, error) {
	data, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hrefs, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
