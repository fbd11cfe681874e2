package device

import "testing"

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		country string
		method  string
		want    string
	}{
		{"browser first tag", "fr-CH, fr;q=0.9, en;q=0.8", "US", MethodBrowser, "fr"},
		{"browser respects quality", "en;q=0.3, de;q=0.9", "", MethodBrowser, "de"},
		{"browser empty header", "", "US", MethodBrowser, ""},
		{"ip saudi arabia", "en-US", "SA", MethodIP, "ar"},
		{"ip germany", "", "DE", MethodIP, "de"},
		{"ip lowercase code", "", "us", MethodIP, "en"},
		{"ip missing country", "en-US", "", MethodIP, ""},
		{"both prefers browser", "es-MX", "DE", MethodBoth, "es"},
		{"both falls back to ip", "", "DE", MethodBoth, "de"},
		{"unknown method acts as browser", "it", "DE", "carrier-pigeon", "it"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectLanguage(tt.header, tt.country, tt.method); got != tt.want {
				t.Errorf("DetectLanguage(%q, %q, %q) = %q, want %q", tt.header, tt.country, tt.method, got, tt.want)
			}
		})
	}
}
