package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

const ModuleWeatherClient = "WeatherClient"

// defaultTimeout is the fixed per-call HTTP timeout. There is no retry loop;
// a failed call fails the unit and processing moves on.
const defaultTimeout = 30 * time.Second

// Client issues historical-weather queries against the provider API.
// One query covers exactly one (location, date, hour) observation unit and
// returns the provider's full JSON payload.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a weather API client for the given base URL and API key.
// Calls are guarded by a circuit breaker so that a misbehaving provider stops
// burning the per-city budget of a large backfill early.
func NewClient(baseURL, apiKey string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weatherapi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		circuit: cb,
	}
}

// FetchHistory fetches the historical weather payload for one observation
// unit. The provider's JSON body is returned verbatim after a well-formedness
// check; non-2xx responses fail with an error carrying status code and body
// text.
func (c *Client) FetchHistory(ctx context.Context, location, date string, hour int) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("q", location)
	values.Set("dt", date)
	values.Set("hour", fmt.Sprintf("%d", hour))
	values.Set("aqi", "yes")
	values.Set("key", c.apiKey)

	endpoint := fmt.Sprintf("%s/history.json?%s", c.baseURL, values.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, exception.NewPipelineError(ModuleWeatherClient, "Failed to create API request", err, false, false)
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		return c.doRequest(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, exception.NewPipelineError(ModuleWeatherClient, "Weather API circuit breaker is open", err, false, true)
		}
		return nil, err
	}

	return result.(json.RawMessage), nil
}

// doRequest executes one HTTP round trip and classifies the outcome.
func (c *Client) doRequest(req *http.Request) (json.RawMessage, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, exception.NewPipelineError(ModuleWeatherClient, "API call failed", err, false, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exception.NewPipelineError(ModuleWeatherClient, "Failed to read API response body", err, false, true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyString := strings.TrimSpace(string(body))
		errMsg := fmt.Sprintf("Error response from API: Status code %d, Body: %s", resp.StatusCode, bodyString)
		isRetryable := resp.StatusCode >= 500
		return nil, exception.NewPipelineError(ModuleWeatherClient, errMsg, errors.New(bodyString), false, isRetryable)
	}

	// Reject bodies that are not valid JSON before they reach the raw store.
	if !json.Valid(body) {
		return nil, exception.NewPipelineErrorf(ModuleWeatherClient, "API returned a non-JSON body (%d bytes)", len(body))
	}

	logger.Debugf("Fetched %d bytes from %s.", len(body), req.URL.Path)
	return json.RawMessage(body), nil
}
