// Package stooq fetches daily price history from the Stooq CSV download
// endpoint. It serves as the fallback strategy behind Yahoo: a different
// venue with a much simpler wire format.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketetl/pkg/marketdata"
)

const defaultBaseURL = "https://stooq.com"

func init() {
	marketdata.RegisterProvider("stooq", func(name string, cfg *marketdata.ProviderConfig) (marketdata.Provider, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		return NewProvider(name, opts...), nil
	})
}

// Provider implements marketdata.Provider via Stooq daily CSV downloads.
type Provider struct {
	name    string
	baseURL string
	client  *http.Client
}

// Option customises the Stooq provider.
type Option func(*Provider)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		if base != "" {
			p.baseURL = base
		}
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		if timeout > 0 {
			p.client.Timeout = timeout
		}
	}
}

// NewProvider constructs a Stooq provider with sane defaults.
func NewProvider(name string, opts ...Option) *Provider {
	if name == "" {
		name = "stooq"
	}
	p := &Provider{
		name:    name,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// stooqSymbol maps a plain US ticker to Stooq's dotted convention. Symbols
// that already carry a venue suffix are passed through unchanged.
func stooqSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if strings.Contains(s, ".") || strings.HasPrefix(s, "^") {
		return s
	}
	return s + ".us"
}

// DailyHistory fetches daily bars for symbol over [start, end].
func (p *Provider) DailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.Bar, error) {
	u := fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		p.baseURL, url.QueryEscape(stooqSymbol(symbol)), start.Format("20060102"), end.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stooq fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stooq: status %d, body: %s", resp.StatusCode, string(body))
	}

	return parseCSV(resp.Body)
}

// parseCSV decodes Stooq's Date,Open,High,Low,Close,Volume daily layout.
// Stooq answers "No data" in the body rather than a non-200 status.
func parseCSV(r io.Reader) ([]marketdata.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stooq parse csv: %w", err)
	}
	if len(records) < 2 || len(records[0]) < 5 {
		return nil, nil
	}

	bars := make([]marketdata.Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 5 {
			continue
		}
		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			continue
		}
		bar := marketdata.Bar{
			Date:   date.UTC(),
			Open:   parseField(rec, 1),
			High:   parseField(rec, 2),
			Low:    parseField(rec, 3),
			Close:  parseField(rec, 4),
			Volume: parseField(rec, 5),
		}
		// Stooq closes are already adjusted for splits and dividends.
		bar.AdjClose = bar.Close
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseField(rec []string, i int) float64 {
	if i >= len(rec) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
