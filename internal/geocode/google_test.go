package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleGeocoder_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("address") {
		case "Hitec City, Hyderabad":
			_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"HITEC City, Hyderabad, Telangana","geometry":{"location":{"lat":17.4474,"lng":78.3762}}}]}`))
		case "Nowhere":
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
		default:
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
		}
	}))
	defer srv.Close()

	g := NewGoogleGeocoder("test-key", srv.URL, 100)

	loc, err := g.Geocode(context.Background(), "Hitec City, Hyderabad")
	require.NoError(t, err)
	assert.InDelta(t, 17.4474, loc.Lat, 1e-9)
	assert.InDelta(t, 78.3762, loc.Lng, 1e-9)
	assert.Equal(t, "HITEC City, Hyderabad, Telangana", loc.FormattedAddress)

	_, err = g.Geocode(context.Background(), "Nowhere")
	assert.True(t, errors.Is(err, ErrNoMatch))

	_, err = g.Geocode(context.Background(), "denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")
}

func TestGoogleGeocoder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGoogleGeocoder("k", srv.URL, 100).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGoogleGeocoder_MissingKey(t *testing.T) {
	_, err := NewGoogleGeocoder("", "", 0).Geocode(context.Background(), "x")
	require.Error(t, err)
}

func TestGoogleGeocoder_BlankAddress(t *testing.T) {
	_, err := NewGoogleGeocoder("k", "http://127.0.0.1:1", 1).Geocode(context.Background(), "   ")
	assert.True(t, errors.Is(err, ErrNoMatch))
}
