package model

// GeoResult is a coarse IP geolocation.
type GeoResult struct {
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	ISP         string  `json:"isp,omitempty"`
	Mobile      bool    `json:"mobile"`
	Proxy       bool    `json:"proxy"`
	Hosting     bool    `json:"hosting"`
	// Source names the provider that produced the result ("fallback" for private IPs).
	Source string `json:"source"`
}
