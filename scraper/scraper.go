// Package scraper collects raw book listings from a paginated search page.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-etl/config"
	"github.com/aluiziolira/go-books-etl/logging"
	"github.com/aluiziolira/go-books-etl/metrics"
	"github.com/aluiziolira/go-books-etl/models"
)

const defaultTimeout = 15 * time.Second

// Collector walks search result pages and gathers unique listings.
type Collector struct {
	cfg       config.ScraperConfig
	base      *colly.Collector
	transport http.RoundTripper
	identity  *Identity
	pauser    Pauser
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option customises a Collector.
type Option func(*Collector)

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Collector) { c.transport = rt }
}

// WithPauser replaces the timer used for inter-page delays and error backoff.
func WithPauser(p Pauser) Option {
	return func(c *Collector) { c.pauser = p }
}

// WithIdentity replaces the request identity.
func WithIdentity(id *Identity) Option {
	return func(c *Collector) { c.identity = id }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// NewCollector builds a collector configured from cfg.
func NewCollector(cfg config.ScraperConfig, opts ...Option) (*Collector, error) {
	parsed, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("search url must include a host")
	}

	c := &Collector{
		cfg:    cfg,
		pauser: timerPauser{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).Named("collector")
	if c.identity == nil {
		c.identity = NewIdentity(cfg.UserAgents, cfg.Referer)
	}
	if c.transport == nil {
		c.transport = cloudflarebp.AddCloudFlareByPass(newHTTPTransport(cfg.Timeout))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := colly.NewCollector(colly.Async(false))
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.SetRequestTimeout(timeout)
	base.WithTransport(c.transport)
	c.base = base

	return c, nil
}

// Collect fetches pages 1..maxPages until targetCount unique listings are held.
// The target is checked between pages, so the final page may overshoot it.
func (c *Collector) Collect(ctx context.Context, targetCount, maxPages int) (*models.CollectResult, error) {
	if maxPages <= 0 {
		return nil, ErrEmptyResult
	}

	result := &models.CollectResult{}
	seen := make(map[string]struct{})

	for page := 1; page <= maxPages && len(result.Books) < targetCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}

		pageURL := c.pageURL(page)
		body, err := c.fetch(ctx, page, pageURL)
		result.Pages++
		if err != nil {
			var fetchErr *NetworkFetchError
			if !errors.As(err, &fetchErr) {
				return nil, err
			}
			result.FetchErrors++
			category := errorTypeLabel(fetchErr.Err)
			c.metrics.IncError(category)
			c.metrics.IncPage("error")
			c.logger.Error("failed to fetch search page",
				zap.Int("page", page),
				zap.String("url", pageURL),
				zap.String("category", category),
				zap.Error(err),
			)
			if page < maxPages {
				if err := c.pauser.Pause(ctx, c.cfg.ErrorBackoff); err != nil {
					return nil, fmt.Errorf("collect: %w", err)
				}
			}
			continue
		}

		listings, containers, err := ParseListings(body)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if containers == 0 {
			c.metrics.IncPage("empty")
			c.logger.Warn("no results on page, stopping", zap.Int("page", page), zap.String("url", pageURL))
			break
		}

		added, duplicates := 0, 0
		for _, listing := range listings {
			if _, ok := seen[listing.Title]; ok {
				duplicates++
				continue
			}
			seen[listing.Title] = struct{}{}
			result.Books = append(result.Books, listing)
			added++
		}
		result.Duplicates += duplicates
		c.metrics.IncPage("ok")
		c.metrics.AddItems(added)
		c.metrics.AddDuplicates(duplicates)
		c.logger.Info("scraped page",
			zap.Int("page", page),
			zap.Int("added", added),
			zap.Int("duplicates", duplicates),
			zap.Int("total", len(result.Books)),
		)

		if page < maxPages && len(result.Books) < targetCount {
			if err := c.pauser.Pause(ctx, jitter(c.cfg.MinDelay, c.cfg.MaxDelay, nil)); err != nil {
				return nil, fmt.Errorf("collect: %w", err)
			}
		}
	}

	if len(result.Books) == 0 {
		return nil, fmt.Errorf("%w after %d pages", ErrEmptyResult, result.Pages)
	}
	return result, nil
}

func (c *Collector) pageURL(page int) string {
	u, _ := url.Parse(c.cfg.SearchURL)
	q := u.Query()
	q.Set("k", c.cfg.Query)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// fetch downloads one page. Failures other than context cancellation come
// back as *NetworkFetchError.
func (c *Collector) fetch(ctx context.Context, page int, pageURL string) ([]byte, error) {
	var (
		body       []byte
		statusCode int
		fetchErr   error
	)

	collector := c.base.Clone()
	collector.Context = ctx
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		c.identity.Apply(*r.Headers)
	})
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	err := runCollector(ctx, collector, pageURL)
	c.metrics.ObserveDuration(time.Since(start))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, ctxErr)
	}
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		c.metrics.IncRequest("error")
		return nil, &NetworkFetchError{
			Page:       page,
			URL:        pageURL,
			StatusCode: statusCode,
			Err:        classifyError(err, statusCode),
		}
	}
	c.metrics.IncRequest("ok")
	return body, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, pageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}
