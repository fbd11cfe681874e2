package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/smartlinks/smartlinks/internal/model"
)

const (
	// DefaultIPAPIBaseURL is the free ip-api.com endpoint.
	DefaultIPAPIBaseURL = "http://ip-api.com"
	ipAPIFields         = "status,message,country,countryCode,regionName,city,lat,lon,timezone,isp,mobile,proxy,hosting,query"
)

// IPAPIOptions configures the ip-api.com provider.
type IPAPIOptions struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	Logger        *slog.Logger
}

// IPAPIProvider looks addresses up against ip-api.com, guarded by a rate
// limiter and a circuit breaker so a dead upstream costs nothing per request.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*model.GeoResult]
}

type ipAPIResponse struct {
	Status      string  `json:"status"`  // "success" or "fail"
	Message     string  `json:"message"` // set when status is "fail"
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Mobile      bool    `json:"mobile"`
	Proxy       bool    `json:"proxy"`
	Hosting     bool    `json:"hosting"`
	Query       string  `json:"query"`
}

// NewIPAPIProvider creates an ip-api.com provider.
func NewIPAPIProvider(opts IPAPIOptions) *IPAPIProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultIPAPIBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		// ip-api.com allows 45 requests per minute on the free tier
		opts.RatePerMinute = 45
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &IPAPIProvider{
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60), opts.RatePerMinute),
	}
	p.breaker = gobreaker.NewCircuitBreaker[*model.GeoResult](gobreaker.Settings{
		Name:        "ip-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("geo circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// Name returns the provider name for logging.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// Lookup queries ip-api.com for ip.
func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (*model.GeoResult, error) {
	if !p.limiter.Allow() {
		return nil, ErrRateLimited
	}

	result, err := p.breaker.Execute(func() (*model.GeoResult, error) {
		return p.query(ctx, ip)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		return nil, err
	}
	return result, nil
}

func (p *IPAPIProvider) query(ctx context.Context, ip string) (*model.GeoResult, error) {
	endpoint := fmt.Sprintf("%s/json/%s?fields=%s", p.baseURL, url.PathEscape(ip), ipAPIFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ip-api.com returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, body.Message)
	}

	return &model.GeoResult{
		CountryCode: body.CountryCode,
		Country:     body.Country,
		City:        body.City,
		Region:      body.RegionName,
		Timezone:    body.Timezone,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		ISP:         body.ISP,
		Mobile:      body.Mobile,
		Proxy:       body.Proxy,
		Hosting:     body.Hosting,
		Source:      p.Name(),
	}, nil
}
