package weather_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/weather"
)

const samplePayload = `{
	"location": {"name": "London", "region": "City of London, Greater London", "country": "UK",
	             "lat": 51.52, "lon": -0.11, "tz_id": "Europe/London"},
	"forecast": {"forecastday": [{"date": "2024-01-15", "hour": [
		{"time_epoch": 1705312800, "time": "2024-01-15 10:00", "temp_c": 5.5, "temp_f": 41.9,
		 "humidity": 80, "pressure_mb": 1012.0, "wind_kph": 10.1, "precip_mm": 0.2,
		 "cloud": 75, "vis_km": 10.0, "uv": 1.0}
	]}]}
}`

func TestFetchHistoryBuildsRequestAndReturnsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "London", q.Get("q"))
		assert.Equal(t, "2024-01-15", q.Get("dt"))
		assert.Equal(t, "10", q.Get("hour"))
		assert.Equal(t, "yes", q.Get("aqi"))
		assert.Equal(t, "test-key", q.Get("key"))
		fmt.Fprint(w, samplePayload)
	}))
	defer server.Close()

	client := weather.NewClient(server.URL, "test-key")
	payload, err := client.FetchHistory(context.Background(), "London", "2024-01-15", 10)
	require.NoError(t, err)

	// The payload is passed through verbatim and decodes into the response
	// schema.
	var resp weather.HistoryResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, "London", resp.Location.Name)

	obs, ok := resp.FirstHour()
	require.True(t, ok)
	assert.Equal(t, int64(1705312800), obs.TimeEpoch)
	assert.Equal(t, 5.5, obs.TempC)
	assert.Equal(t, "2024-01-15", resp.FirstForecastDate())
}

func TestFetchHistoryServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "internal"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := weather.NewClient(server.URL, "test-key")
	_, err := client.FetchHistory(context.Background(), "London", "2024-01-15", 10)
	require.Error(t, err)
	assert.True(t, exception.IsTemporary(err))
}

func TestFetchHistoryClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 2006, "message": "API key is invalid."}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := weather.NewClient(server.URL, "test-key")
	_, err := client.FetchHistory(context.Background(), "London", "2024-01-15", 10)
	require.Error(t, err)
	assert.False(t, exception.IsTemporary(err))
	assert.Contains(t, err.Error(), "API key is invalid")
}

func TestFetchHistoryRejectsNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer server.Close()

	client := weather.NewClient(server.URL, "test-key")
	_, err := client.FetchHistory(context.Background(), "London", "2024-01-15", 10)
	assert.Error(t, err)
}

func TestHistoryResponseFirstHourEmpty(t *testing.T) {
	var resp weather.HistoryResponse
	_, ok := resp.FirstHour()
	assert.False(t, ok)
	assert.Empty(t, resp.FirstForecastDate())
}
