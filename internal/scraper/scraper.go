package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/apod-api/internal/apod"
	"github.com/pfrederiksen/apod-api/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	BaseURL   = "https://apod.nasa.gov/apod"
	UserAgent = "apod-api/1.0 (github.com/pfrederiksen/apod-api)"
	Timeout   = 30 * time.Second

	// pageDateLayout formats a date as yyMMdd for page names
	pageDateLayout = "060102"
)

// StatusError is returned when the APOD site answers with a non-200 status
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// Resolver turns request options into the ordered list of days to fetch
type Resolver func(opts apod.Options) []time.Time

// Scraper fetches and parses APOD pages
type Scraper struct {
	client    *http.Client
	timeout   time.Duration
	baseURL   string
	userAgent string
	extractor Extractor
	log       *logger.Logger
	metrics   *logger.Metrics
	resolve   Resolver
}

// Option configures a Scraper
type Option func(*Scraper)

// WithBaseURL points the scraper at a different APOD mirror
func WithBaseURL(base string) Option {
	return func(s *Scraper) {
		s.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient replaces the HTTP client. A nil client is ignored.
// The client is copied, so WithTimeout never changes the caller's value.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the per-request timeout, whichever client is in use
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.timeout = d
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		s.userAgent = ua
	}
}

// WithExtractor selects the page layout extractor
func WithExtractor(e Extractor) Option {
	return func(s *Scraper) {
		s.extractor = e
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Scraper) {
		s.log = l
	}
}

// WithMetrics sets the metrics tracker
func WithMetrics(m *logger.Metrics) Option {
	return func(s *Scraper) {
		s.metrics = m
	}
}

// WithResolver replaces apod.Resolve as the source of dates for Fetch and FetchPartial
func WithResolver(r Resolver) Option {
	return func(s *Scraper) {
		if r != nil {
			s.resolve = r
		}
	}
}

// WithClock resolves dates against now instead of the wall clock
func WithClock(now func() time.Time) Option {
	return WithResolver(func(opts apod.Options) []time.Time {
		return apod.Dates(opts, now())
	})
}

// New creates a new Scraper instance
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client:    &http.Client{},
		timeout:   Timeout,
		baseURL:   BaseURL,
		userAgent: UserAgent,
		extractor: LayoutV1{},
		log:       logger.Default(),
		metrics:   logger.DefaultMetrics(),
		resolve:   apod.Resolve,
	}
	for _, opt := range opts {
		opt(s)
	}

	client := *s.client
	client.Timeout = s.timeout
	s.client = &client

	return s
}

// PageURL returns the page address for date, e.g. https://apod.nasa.gov/apod/ap230101.html
func (s *Scraper) PageURL(date time.Time) string {
	return fmt.Sprintf("%s/ap%s.html", s.baseURL, date.Format(pageDateLayout))
}

// Fetch merges opts over apod.DefaultOptions, resolves the dates (apod.Resolve unless
// WithResolver or WithClock is set) and fetches them all
func (s *Scraper) Fetch(ctx context.Context, opts apod.Options) ([]*apod.APOD, error) {
	final := apod.DefaultOptions().Merge(opts)
	return s.FetchAll(ctx, s.resolve(final))
}

// FetchPartial is Fetch with per-day failures isolated (see FetchEach)
func (s *Scraper) FetchPartial(ctx context.Context, opts apod.Options) []Outcome {
	final := apod.DefaultOptions().Merge(opts)
	return s.FetchEach(ctx, s.resolve(final))
}

// FetchAll fetches every date concurrently. Results are in the order of dates.
// The first failure cancels the remaining requests and fails the whole batch.
func (s *Scraper) FetchAll(ctx context.Context, dates []time.Time) ([]*apod.APOD, error) {
	results := make([]*apod.APOD, len(dates))
	s.metrics.SetGauge("scraper.batch_size", float64(len(dates)))

	g, gctx := errgroup.WithContext(ctx)
	for i, date := range dates {
		g.Go(func() error {
			result, err := s.FetchDay(gctx, date)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", date.Format(apod.DateLayout), err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Outcome is the result of fetching a single date in FetchEach
type Outcome struct {
	Date time.Time
	APOD *apod.APOD
	Err  error
}

// FetchEach fetches every date concurrently without letting one failure void the rest.
// Outcomes are in the order of dates.
func (s *Scraper) FetchEach(ctx context.Context, dates []time.Time) []Outcome {
	outcomes := make([]Outcome, len(dates))
	s.metrics.SetGauge("scraper.batch_size", float64(len(dates)))

	var wg sync.WaitGroup
	for i, date := range dates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.FetchDay(ctx, date)
			if err != nil {
				s.log.Warn("Skipping day after fetch failure", logger.Fields{
					"date":  date.Format(apod.DateLayout),
					"error": err.Error(),
				})
			}
			outcomes[i] = Outcome{Date: apod.Normalize(date), APOD: result, Err: err}
		}()
	}
	wg.Wait()

	return outcomes
}

// FetchDay fetches and parses the page for a single date
func (s *Scraper) FetchDay(ctx context.Context, date time.Time) (*apod.APOD, error) {
	date = apod.Normalize(date)
	pageURL := s.PageURL(date)

	start := time.Now()
	body, err := s.get(ctx, pageURL)
	s.metrics.RecordTiming("scraper.fetch", time.Since(start))
	if err != nil {
		s.metrics.IncrCounter("scraper.fetch.error")
		return nil, err
	}
	s.metrics.IncrCounter("scraper.fetch.ok")

	result, err := s.parse(bytes.NewReader(body), pageURL, date)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Fetched APOD page", logger.Fields{
		"date":    date.Format(apod.DateLayout),
		"url":     pageURL,
		"bytes":   len(body),
		"authors": len(result.Authors),
	})

	return result, nil
}

// get issues the GET request and returns the full body
func (s *Scraper) get(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// parse runs the extractor over an HTML page
func (s *Scraper) parse(r io.Reader, pageURL string, date time.Time) (*apod.APOD, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}

	p := s.extractor.Extract(doc, page)
	if p.Authors == nil {
		p.Authors = make([]apod.Author, 0)
	}

	return &apod.APOD{
		Date:          date,
		Title:         p.Title,
		Image:         p.Image,
		FullSizeImage: p.FullSizeImage,
		Authors:       p.Authors,
		Description:   p.Description,
	}, nil
}
