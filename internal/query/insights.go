package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/smartlinks/smartlinks/internal/model"
)

const (
	// MinCityEvents is the number of events a city needs to exceed to be ranked.
	MinCityEvents = 10

	topMobileCities     = 5
	topBrowserCombos    = 10
	topBrandsPerCountry = 3
)

// CityMobileUsage is the share of handheld traffic in one city.
type CityMobileUsage struct {
	City       string  `json:"city"`
	Total      int64   `json:"total"`
	Mobile     int64   `json:"mobile"`
	Percentage float64 `json:"percentage"`
}

// CountryBrowser is a browser's event count within a country.
type CountryBrowser struct {
	Country string `json:"country"`
	Browser string `json:"browser"`
	Count   int64  `json:"count"`
}

// CountryBrand is a device brand's share within a country.
type CountryBrand struct {
	Country    string  `json:"country"`
	Brand      string  `json:"brand"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Insights cross-references device and geo dimensions.
type Insights struct {
	MobileByCity     []CityMobileUsage `json:"mobile_by_city"`
	BrowserByCountry []CountryBrowser  `json:"browser_by_country"`
	BrandByCountry   []CountryBrand    `json:"brand_by_country"`
}

// Insights computes all cross-referenced views for f.
func (e *Engine) Insights(ctx context.Context, f Filter) (Insights, error) {
	c := e.Criteria(f)

	cityDevices, err := e.source.CountByPair(ctx, c, DimCity, DimDeviceType)
	if err != nil {
		return Insights{}, fmt.Errorf("city by device type: %w", err)
	}
	browsers, err := e.source.CountByPair(ctx, c, DimCountry, DimBrowser)
	if err != nil {
		return Insights{}, fmt.Errorf("country by browser: %w", err)
	}
	brands, err := e.source.CountByPair(ctx, c, DimCountry, DimDeviceBrand)
	if err != nil {
		return Insights{}, fmt.Errorf("country by brand: %w", err)
	}

	return Insights{
		MobileByCity:     mobileByCity(cityDevices),
		BrowserByCountry: browserByCountry(browsers),
		BrandByCountry:   brandByCountry(brands),
	}, nil
}

// mobileByCity ranks cities with more than MinCityEvents events by handheld share.
// Smartphones and tablets count as handheld.
func mobileByCity(rows []PairCount) []CityMobileUsage {
	byCity := make(map[string]*CityMobileUsage)
	for _, r := range rows {
		u, ok := byCity[r.First]
		if !ok {
			u = &CityMobileUsage{City: r.First}
			byCity[r.First] = u
		}
		u.Total += r.Count
		if r.Second == model.DeviceTypeSmartphone || r.Second == model.DeviceTypeTablet {
			u.Mobile += r.Count
		}
	}

	out := make([]CityMobileUsage, 0, len(byCity))
	for _, u := range byCity {
		if u.Total <= MinCityEvents {
			continue
		}
		u.Percentage = Percentage(u.Mobile, u.Total)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].City < out[j].City
	})
	if len(out) > topMobileCities {
		out = out[:topMobileCities]
	}
	return out
}

func browserByCountry(rows []PairCount) []CountryBrowser {
	out := make([]CountryBrowser, 0, len(rows))
	for _, r := range rows {
		out = append(out, CountryBrowser{Country: r.First, Browser: r.Second, Count: r.Count})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > topBrowserCombos {
		out = out[:topBrowserCombos]
	}
	return out
}

// brandByCountry keeps the top brands of each country, countries ordered by volume.
func brandByCountry(rows []PairCount) []CountryBrand {
	type country struct {
		name   string
		total  int64
		brands []PairCount
	}
	index := make(map[string]*country)
	var order []*country
	for _, r := range rows {
		c, ok := index[r.First]
		if !ok {
			c = &country{name: r.First}
			index[r.First] = c
			order = append(order, c)
		}
		c.total += r.Count
		c.brands = append(c.brands, r)
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].total > order[j].total })

	out := make([]CountryBrand, 0)
	for _, c := range order {
		sort.SliceStable(c.brands, func(i, j int) bool { return c.brands[i].Count > c.brands[j].Count })
		for i, b := range c.brands {
			if i == topBrandsPerCountry {
				break
			}
			out = append(out, CountryBrand{
				Country:    c.name,
				Brand:      b.Second,
				Count:      b.Count,
				Percentage: Percentage(b.Count, c.total),
			})
		}
	}
	return out
}
