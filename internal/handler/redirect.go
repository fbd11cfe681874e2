package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/smartlinks/smartlinks/internal/middleware"
	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/service"
)

// Redirector resolves smart link requests.
type Redirector interface {
	ResolveRedirect(ctx context.Context, req service.RedirectRequest) service.RedirectResult
}

// RedirectHandler serves the public smart link URLs.
type RedirectHandler struct {
	svc    Redirector
	siteID int64
	logger *slog.Logger
}

// NewRedirectHandler creates a RedirectHandler that resolves slugs within siteID.
func NewRedirectHandler(svc Redirector, siteID int64, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{
		svc:    svc,
		siteID: siteID,
		logger: logger.With("component", "handler.redirect"),
	}
}

// LandingButton is one platform choice on a landing response.
type LandingButton struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// LandingResponse is returned when no URL fits the visitor's device.
type LandingResponse struct {
	Slug    string          `json:"slug"`
	Title   string          `json:"title"`
	Buttons []LandingButton `json:"buttons"`
}

// Redirect handles GET /{slug} and GET /{slug}/{platform}.
// The optional ?src= parameter tags the visit source (qr, landing, direct).
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	result := h.svc.ResolveRedirect(r.Context(), service.RedirectRequest{
		Slug:           slug,
		SiteID:         h.siteID,
		Platform:       chi.URLParam(r, "platform"),
		Source:         r.URL.Query().Get("src"),
		UserAgent:      r.UserAgent(),
		IP:             middleware.ClientIP(r),
		Referrer:       r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})

	switch result.Outcome {
	case service.OutcomeRedirect:
		h.logger.Debug("redirect",
			"slug", slug,
			"platform", string(result.Device.Platform),
			"tracked", result.Tracked,
		)
		http.Redirect(w, r, result.DestinationURL, http.StatusFound)

	case service.OutcomeLanding:
		writeJSON(w, http.StatusOK, landing(result.Link))

	default:
		h.logger.Info("redirect_not_found", "slug", slug)
		if result.DestinationURL == "" {
			writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
			return
		}
		http.Redirect(w, r, result.DestinationURL, http.StatusFound)
	}
}

// landing lists a button for every configured platform URL. Buttons point back at
// the platform route so the choice is recorded as a button click.
func landing(link *model.Link) LandingResponse {
	resp := LandingResponse{Slug: link.Slug, Title: link.Title, Buttons: []LandingButton{}}
	candidates := []struct {
		key model.PlatformKey
		url string
	}{
		{model.PlatformKeyIOS, link.URLs.IOS},
		{model.PlatformKeyAndroid, link.URLs.Android},
		{model.PlatformKeyHuawei, link.URLs.Huawei},
		{model.PlatformKeyAmazon, link.URLs.Amazon},
		{model.PlatformKeyWindows, link.URLs.Windows},
		{model.PlatformKeyMac, link.URLs.Mac},
	}
	for _, c := range candidates {
		if c.url == "" {
			continue
		}
		resp.Buttons = append(resp.Buttons, LandingButton{
			Platform: string(c.key),
			URL:      "/" + url.PathEscape(link.Slug) + "/" + string(c.key) + "?src=landing",
		})
	}
	return resp
}
