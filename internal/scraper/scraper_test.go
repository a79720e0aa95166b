package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pfrederiksen/apod-api/internal/apod"
	"github.com/pfrederiksen/apod-api/internal/logger"
)

func day(s string) time.Time {
	d, err := time.Parse(apod.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// pageFor renders a minimal APOD page whose description is the page name
func pageFor(name string) string {
	return fmt.Sprintf(`<html><body>
<center><h1>APOD</h1><p>intro<p>date<br><a href="image/%[1]s_big.jpg"><img src="image/%[1]s.jpg"></a></center>
<center><b>%[1]s</b><a href="https://example.org/%[1]s">Author %[1]s</a></center>
<p>%[1]s</p>
</body></html>`, name)
}

func newTestScraper(serverURL string, opts ...Option) *Scraper {
	base := []Option{
		WithBaseURL(serverURL),
		WithLogger(logger.Nop()),
		WithMetrics(logger.NewMetrics()),
	}
	return New(append(base, opts...)...)
}

func TestNew(t *testing.T) {
	s := New()

	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.client == nil {
		t.Error("scraper client is nil")
	}
	if s.client.Timeout != Timeout {
		t.Errorf("client timeout = %v, want %v", s.client.Timeout, Timeout)
	}
	if s.baseURL != BaseURL {
		t.Errorf("scraper baseURL = %q, want %q", s.baseURL, BaseURL)
	}
	if s.extractor.Version() != DefaultExtractorVersion {
		t.Errorf("extractor = %q, want %q", s.extractor.Version(), DefaultExtractorVersion)
	}
}

func TestNew_TimeoutAndClient(t *testing.T) {
	shared := &http.Client{Timeout: 5 * time.Second}

	tests := []struct {
		name        string
		opts        []Option
		wantTimeout time.Duration
	}{
		{"default", nil, Timeout},
		{"timeout only", []Option{WithTimeout(time.Second)}, time.Second},
		{"client then timeout", []Option{WithHTTPClient(shared), WithTimeout(time.Second)}, time.Second},
		{"timeout then client", []Option{WithTimeout(time.Second), WithHTTPClient(shared)}, time.Second},
		{"client alone keeps scraper timeout", []Option{WithHTTPClient(shared)}, Timeout},
		{"nil client ignored", []Option{WithHTTPClient(nil), WithTimeout(time.Second)}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.opts...)
			if s.client == nil {
				t.Fatal("scraper client is nil")
			}
			if s.client.Timeout != tt.wantTimeout {
				t.Errorf("client timeout = %v, want %v", s.client.Timeout, tt.wantTimeout)
			}
			if s.client == shared {
				t.Error("scraper uses the caller's client instead of a copy")
			}
		})
	}

	if shared.Timeout != 5*time.Second {
		t.Errorf("caller's client timeout changed to %v", shared.Timeout)
	}
}

func TestNew_KeepsInjectedTransport(t *testing.T) {
	transport := &http.Transport{}
	s := New(WithHTTPClient(&http.Client{Transport: transport}), WithTimeout(time.Second))

	if s.client.Transport != transport {
		t.Error("injected transport was not kept")
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		base string
		date time.Time
		want string
	}{
		{BaseURL, day("2023-01-01"), "https://apod.nasa.gov/apod/ap230101.html"},
		{BaseURL, day("1995-06-16"), "https://apod.nasa.gov/apod/ap950616.html"},
		{"http://mirror.local/apod/", day("2024-12-31"), "http://mirror.local/apod/ap241231.html"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			s := New(WithBaseURL(tt.base))
			if got := s.PageURL(tt.date); got != tt.want {
				t.Errorf("PageURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchDay(t *testing.T) {
	fixture, err := os.ReadFile(filepath.Join("testdata", "ap230101.html"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		statusCode int
		body       string
		wantError  bool
		wantStatus int
	}{
		{
			name:       "successful fetch",
			statusCode: http.StatusOK,
			body:       string(fixture),
		},
		{
			name:       "missing page",
			statusCode: http.StatusNotFound,
			wantError:  true,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			wantError:  true,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unexpected layout is not an error",
			statusCode: http.StatusOK,
			body:       "<html><body><div>maintenance</div></body></html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "apod-api") {
					t.Errorf("User-Agent = %q, should contain 'apod-api'", ua)
				}
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s := newTestScraper(server.URL + "/apod")
			result, err := s.FetchDay(context.Background(), day("2023-01-01"))

			if gotPath != "/apod/ap230101.html" {
				t.Errorf("requested path = %q, want /apod/ap230101.html", gotPath)
			}

			if tt.wantError {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("FetchDay() error = %v, want *StatusError", err)
				}
				if statusErr.StatusCode != tt.wantStatus {
					t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.wantStatus)
				}
				return
			}

			if err != nil {
				t.Fatalf("FetchDay() unexpected error: %v", err)
			}
			if !result.Date.Equal(day("2023-01-01")) {
				t.Errorf("Date = %v, want 2023-01-01", result.Date)
			}
			if result.Authors == nil {
				t.Error("Authors is nil, want non-nil slice")
			}
		})
	}
}

func TestFetchDay_ResolvesAgainstBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageFor("x")))
	}))
	defer server.Close()

	s := newTestScraper(server.URL + "/apod")
	result, err := s.FetchDay(context.Background(), day("2023-01-01"))
	if err != nil {
		t.Fatalf("FetchDay() error: %v", err)
	}

	if want := server.URL + "/apod/image/x.jpg"; result.Image != want {
		t.Errorf("Image = %q, want %q", result.Image, want)
	}
	if want := server.URL + "/apod/image/x_big.jpg"; result.FullSizeImage != want {
		t.Errorf("FullSizeImage = %q, want %q", result.FullSizeImage, want)
	}
	if result.Title != "x" || result.Description != "x" {
		t.Errorf("Title/Description = %q/%q, want x/x", result.Title, result.Description)
	}
}

func TestFetchDay_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	metrics := logger.NewMetrics()
	s := newTestScraper(url, WithMetrics(metrics))

	if _, err := s.FetchDay(context.Background(), day("2023-01-01")); err == nil {
		t.Fatal("FetchDay() expected error for closed server, got nil")
	}
	if got := metrics.Counter("scraper.fetch.error"); got != 1 {
		t.Errorf("scraper.fetch.error = %d, want 1", got)
	}
}

func TestFetchAll_PreservesOrder(t *testing.T) {
	// Earlier dates answer later so completion order is the reverse of request order
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/ap"), ".html")
		d, _ := time.Parse("060102", name)
		time.Sleep(time.Duration(31-d.Day()) * 5 * time.Millisecond)
		w.Write([]byte(pageFor(name)))
	}))
	defer server.Close()

	dates := apod.Dates(apod.Options{DateText: "2023-01-11", Mode: apod.ModeWeek}, time.Now())
	s := newTestScraper(server.URL)

	results, err := s.FetchAll(context.Background(), dates)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}

	if len(results) != len(dates) {
		t.Fatalf("FetchAll() returned %d results, want %d", len(results), len(dates))
	}
	for i, r := range results {
		if !r.Date.Equal(dates[i]) {
			t.Errorf("results[%d].Date = %v, want %v", i, r.Date, dates[i])
		}
		if want := dates[i].Format("060102"); r.Description != want {
			t.Errorf("results[%d].Description = %q, want %q", i, r.Description, want)
		}
	}
}

func TestFetchAll_RunsConcurrently(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n == apod.WeekLength {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		atomic.AddInt32(&inFlight, -1)
		w.Write([]byte(pageFor("p")))
	}))
	defer server.Close()

	dates := apod.Dates(apod.Options{DateText: "2023-01-11", Mode: apod.ModeWeek}, time.Now())
	s := newTestScraper(server.URL)

	if _, err := s.FetchAll(context.Background(), dates); err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if got := atomic.LoadInt32(&peak); got != apod.WeekLength {
		t.Errorf("peak concurrent requests = %d, want %d", got, apod.WeekLength)
	}
}

func TestFetchAll_OneFailureFailsBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ap230104.html" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	dates := apod.Dates(apod.Options{DateText: "2023-01-11", Mode: apod.ModeWeek}, time.Now())
	s := newTestScraper(server.URL)

	results, err := s.FetchAll(context.Background(), dates)
	if err == nil {
		t.Fatal("FetchAll() expected error, got nil")
	}
	if results != nil {
		t.Errorf("FetchAll() results = %v, want nil on failure", results)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("FetchAll() error = %v, want wrapped 503 StatusError", err)
	}
	if !strings.Contains(err.Error(), "2023-01-04") {
		t.Errorf("error %q should name the failing date", err)
	}
}

func TestFetchEach_IsolatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ap230104.html" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	dates := apod.Dates(apod.Options{DateText: "2023-01-11", Mode: apod.ModeWeek}, time.Now())
	s := newTestScraper(server.URL)

	outcomes := s.FetchEach(context.Background(), dates)
	if len(outcomes) != len(dates) {
		t.Fatalf("FetchEach() returned %d outcomes, want %d", len(outcomes), len(dates))
	}

	for i, o := range outcomes {
		if !o.Date.Equal(dates[i]) {
			t.Errorf("outcomes[%d].Date = %v, want %v", i, o.Date, dates[i])
		}
		if dates[i].Format(apod.DateLayout) == "2023-01-04" {
			if o.Err == nil || o.APOD != nil {
				t.Errorf("outcomes[%d] = %+v, want error only", i, o)
			}
			continue
		}
		if o.Err != nil || o.APOD == nil {
			t.Errorf("outcomes[%d] = %+v, want result", i, o)
		}
	}
}

func TestFetch_ResolvesOptions(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	clock := func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC) }
	s := newTestScraper(server.URL, WithClock(clock))

	t.Run("defaults to today", func(t *testing.T) {
		results, err := s.Fetch(context.Background(), apod.Options{})
		if err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
		if len(results) != 1 || results[0].Date.Format(apod.DateLayout) != "2026-10-19" {
			t.Errorf("Fetch() = %+v, want one result for 2026-10-19", results)
		}
	})

	t.Run("explicit date", func(t *testing.T) {
		results, err := s.Fetch(context.Background(), apod.Options{DateText: "2023-01-01"})
		if err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
		if len(results) != 1 || results[0].Date.Format(apod.DateLayout) != "2023-01-01" {
			t.Errorf("Fetch() = %+v, want one result for 2023-01-01", results)
		}
	})

	t.Run("week mode", func(t *testing.T) {
		before := atomic.LoadInt32(&requests)
		results, err := s.Fetch(context.Background(), apod.Options{Mode: apod.ModeWeek})
		if err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
		if len(results) != apod.WeekLength {
			t.Fatalf("Fetch() returned %d results, want %d", len(results), apod.WeekLength)
		}
		if got := atomic.LoadInt32(&requests) - before; got != apod.WeekLength {
			t.Errorf("upstream requests = %d, want %d", got, apod.WeekLength)
		}
		if first := results[0].Date.Format(apod.DateLayout); first != "2026-10-11" {
			t.Errorf("first date = %s, want 2026-10-11", first)
		}
	})
}

func TestFetch_UsesResolver(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	var got apod.Options
	resolver := func(opts apod.Options) []time.Time {
		got = opts
		return []time.Time{day("2020-02-29")}
	}
	s := newTestScraper(server.URL, WithResolver(resolver))

	results, err := s.Fetch(context.Background(), apod.Options{DateText: "2023-01-01"})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if got.Mode != apod.ModeDay || got.DateText != "2023-01-01" {
		t.Errorf("resolver got %+v, want defaults merged with the request", got)
	}
	if len(results) != 1 || results[0].Date.Format(apod.DateLayout) != "2020-02-29" {
		t.Errorf("Fetch() = %+v, want the resolver's date", results)
	}
	if len(paths) != 1 || paths[0] != "/ap200229.html" {
		t.Errorf("upstream paths = %v, want [/ap200229.html]", paths)
	}

	outcomes := s.FetchPartial(context.Background(), apod.Options{})
	if len(outcomes) != 1 || outcomes[0].Date.Format(apod.DateLayout) != "2020-02-29" {
		t.Errorf("FetchPartial() = %+v, want the resolver's date", outcomes)
	}
}

func TestFetch_DefaultResolverIsWallClock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	s := newTestScraper(server.URL)

	before := apod.Normalize(time.Now())
	results, err := s.Fetch(context.Background(), apod.Options{})
	after := apod.Normalize(time.Now())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Fetch() returned %d results, want 1", len(results))
	}
	if d := results[0].Date; d.Before(before) || d.After(after) {
		t.Errorf("date = %v, want today", d)
	}
}

func TestFetchDay_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScraper(server.URL)
	if _, err := s.FetchDay(ctx, day("2023-01-01")); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchDay() error = %v, want context.Canceled", err)
	}
}

func TestFetchPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ap261011.html" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(pageFor("ok")))
	}))
	defer server.Close()

	clock := func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC) }
	s := newTestScraper(server.URL, WithClock(clock))

	outcomes := s.FetchPartial(context.Background(), apod.Options{Mode: apod.ModeWeek})
	if len(outcomes) != apod.WeekLength {
		t.Fatalf("FetchPartial() returned %d outcomes, want %d", len(outcomes), apod.WeekLength)
	}
	if outcomes[0].Err == nil {
		t.Error("outcomes[0] should carry the 404 error")
	}
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i].Err != nil {
			t.Errorf("outcomes[%d] unexpected error: %v", i, outcomes[i].Err)
		}
	}
}
