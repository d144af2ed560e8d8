package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the Financial Modeling Prep API.
	DefaultBaseURL = "https://financialmodelingprep.com/api/v3"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5
)

// FMPClient fetches financial data from Financial Modeling Prep.
type FMPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// FMPOption configures the FMPClient.
type FMPOption func(*FMPClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) FMPOption {
	return func(c *FMPClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) FMPOption {
	return func(c *FMPClient) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) FMPOption {
	return func(c *FMPClient) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewFMPClient creates a Financial Modeling Prep API client.
func NewFMPClient(apiKey string, opts ...FMPOption) *FMPClient {
	c := &FMPClient{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fmpProfile struct {
	Symbol       string  `json:"symbol"`
	MarketCap    float64 `json:"mktCap"`
	CompanyName  string  `json:"companyName"`
	Industry     string  `json:"industry"`
	Price        float64 `json:"price"`
	CurrencyCode string  `json:"currency"`
}

type fmpRatios struct {
	PERatioTTM              *float64 `json:"peRatioTTM"`
	DebtEquityRatioTTM      *float64 `json:"debtEquityRatioTTM"`
	PriceEarningsToGrowthTTM *float64 `json:"priceEarningsToGrowthRatioTTM"`
	ForwardPE               *float64 `json:"priceEarningsRatioTTM"`
}

type fmpIncomeStatement struct {
	Date          string  `json:"date"`
	Revenue       float64 `json:"revenue"`
	GrossProfit   float64 `json:"grossProfit"`
	NetIncome     float64 `json:"netIncome"`
	CalendarYear  string  `json:"calendarYear"`
	ReportedCurrency string `json:"reportedCurrency"`
}

// Snapshot fetches profile, ratio, and income-statement data for the ticker
// and assembles a Snapshot. Unknown tickers yield an empty snapshot, not an
// error; FMP responds with empty arrays for those.
func (c *FMPClient) Snapshot(ctx context.Context, ticker string) (Snapshot, error) {
	var snap Snapshot

	var profiles []fmpProfile
	if err := c.get(ctx, "/profile/"+url.PathEscape(ticker), nil, &profiles); err != nil {
		return Snapshot{}, fmt.Errorf("fmp profile %s: %w", ticker, err)
	}
	if len(profiles) > 0 && profiles[0].MarketCap > 0 {
		mc := profiles[0].MarketCap
		snap.MarketCap = &mc
	}

	var ratios []fmpRatios
	if err := c.get(ctx, "/ratios-ttm/"+url.PathEscape(ticker), nil, &ratios); err != nil {
		return Snapshot{}, fmt.Errorf("fmp ratios %s: %w", ticker, err)
	}
	if len(ratios) > 0 {
		snap.TrailingPE = ratios[0].PERatioTTM
		snap.ForwardPE = ratios[0].ForwardPE
		snap.DebtToEquity = ratios[0].DebtEquityRatioTTM
	}

	params := url.Values{}
	params.Set("limit", "4")
	var statements []fmpIncomeStatement
	if err := c.get(ctx, "/income-statement/"+url.PathEscape(ticker), params, &statements); err != nil {
		return Snapshot{}, fmt.Errorf("fmp income statement %s: %w", ticker, err)
	}
	if len(statements) > 0 {
		revenue := make(map[string]float64, len(statements))
		for _, st := range statements {
			if st.Date != "" {
				revenue[st.Date] = st.Revenue
			}
		}
		snap.RevenueByPeriod = revenue

		// Year-over-year growth from the two most recent annual statements.
		if len(statements) > 1 && statements[1].Revenue > 0 {
			growth := (statements[0].Revenue - statements[1].Revenue) / statements[1].Revenue
			snap.RevenueGrowth = &growth
		}
	}

	return snap, nil
}

type fmpSearchHit struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// SearchCompanies looks up tickers matching the query.
func (c *FMPClient) SearchCompanies(ctx context.Context, query string, limit int) ([]Company, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	var hits []fmpSearchHit
	if err := c.get(ctx, "/search-ticker", params, &hits); err != nil {
		return nil, fmt.Errorf("fmp search %q: %w", query, err)
	}

	out := make([]Company, 0, len(hits))
	for _, h := range hits {
		out = append(out, Company{Name: h.Name, Ticker: h.Symbol})
	}
	return out, nil
}

func (c *FMPClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ Provider        = (*FMPClient)(nil)
	_ CompanySearcher = (*FMPClient)(nil)
)
