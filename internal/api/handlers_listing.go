// handlers_listing.go - WAF listing handlers
package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// ListingHandlerImpl implements the ListingHandler interface
type ListingHandlerImpl struct {
	normalizer Normalizer
}

// NewListingHandler creates a new listing handler instance
func NewListingHandler(n Normalizer) ListingHandler {
	return &ListingHandlerImpl{normalizer: n}
}

// HandleResolveListing fetches a listing page and returns its file descriptors
func (h *ListingHandlerImpl) HandleResolveListing(c echo.Context) error {
	raw := c.QueryParam("url")
	if raw == "" {
		return NewValidationError("url")
	}
	if err := validateSourceURL(raw); err != nil {
		return err
	}

	l := h.normalizer.ResolveListing(c.Request().Context(), raw)
	if l.Error != "" {
		return NewUpstreamError("failed to resolve listing", l.Error)
	}
	return c.JSON(http.StatusOK, l)
}

func validateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewBadRequestError("invalid url", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewBadRequestError("url must be an absolute http(s) url", nil)
	}
	return nil
}
