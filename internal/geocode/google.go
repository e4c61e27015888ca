// Package geocode resolves addresses to coordinates and checks their distance to the office.
package geocode

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	httpclient "receipt-agent/internal/common/http"
)

const DefaultGoogleURL = "https://maps.googleapis.com/maps/api/geocode/json"

// ErrNoMatch is returned when the provider has no result for an address.
var ErrNoMatch = errors.New("geocode: no match")

// Location is a resolved address.
type Location struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formattedAddress,omitempty"`
}

// Geocoder resolves one free-text address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Location, error)
}

type googleGeocodeResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// GoogleGeocoder calls the Google Geocoding API under a client-side rate limit.
type GoogleGeocoder struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

func NewGoogleGeocoder(apiKey, baseURL string, requestsPerSec float64) *GoogleGeocoder {
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 10
	}
	return &GoogleGeocoder{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httpclient.NewClient(10*time.Second, requestsPerSec),
	}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (*Location, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if strings.TrimSpace(address) == "" {
		return nil, ErrNoMatch
	}
	params := url.Values{
		"address": {address},
		"key":     {g.apiKey},
	}
	var body googleGeocodeResponse
	if err := g.client.GetJSON(ctx, g.baseURL+"?"+params.Encode(), &body); err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoMatch
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return nil, ErrNoMatch
	}

	r := body.Results[0]
	return &Location{
		Lat:              r.Geometry.Location.Lat,
		Lng:              r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
	}, nil
}
