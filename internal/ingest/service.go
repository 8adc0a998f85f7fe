package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tigerroll/weatherlake/internal/config"
	"github.com/tigerroll/weatherlake/internal/metrics"
	"github.com/tigerroll/weatherlake/internal/objectkey"
	"github.com/tigerroll/weatherlake/internal/storage"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
	"github.com/tigerroll/weatherlake/internal/weather"
)

// Response is the invocation result envelope.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Service executes ingestion jobs: for every (date, hour) job and every
// configured city it fetches one historical observation and persists the
// provider payload verbatim under the raw hierarchy.
type Service struct {
	cfg      *config.Config
	client   *weather.Client
	conn     storage.Connection
	recorder *metrics.Recorder
}

// NewService creates an ingestion Service. recorder may be nil, in which
// case no metrics are recorded.
func NewService(cfg *config.Config, client *weather.Client, conn storage.Connection, recorder *metrics.Recorder) *Service {
	return &Service{cfg: cfg, client: client, conn: conn, recorder: recorder}
}

// Run executes every job sequentially and returns a summary response. A city
// failure is logged and counted but never aborts the run; the remaining
// city-hour combinations still execute and the response stays 200 with the
// success ratio in the body. Only invocation-level failures surface as errors.
func (s *Service) Run(ctx context.Context, jobs []Job) (Response, error) {
	total := len(jobs) * len(s.cfg.Cities)
	successful := 0

	for _, job := range jobs {
		logger.Infof("Ingest: fetching %d cities for date=%s hour=%d.", len(s.cfg.Cities), job.Date, job.Hour)
		for _, city := range s.cfg.Cities {
			if err := s.ingestCityHour(ctx, city, job); err != nil {
				logger.Errorf("Ingest: city '%s' date=%s hour=%d failed: %v", city, job.Date, job.Hour, err)
				if s.recorder != nil {
					s.recorder.RecordFetchFailure(objectkey.CityID(city))
				}
				continue
			}
			successful++
		}
	}

	body := fmt.Sprintf("Backfill completed. Total: %d/%d successful city-hour combinations", successful, total)
	logger.Infof("Ingest: %s", body)
	return Response{StatusCode: http.StatusOK, Body: body}, nil
}

// ingestCityHour fetches one observation and writes it to the raw bucket.
// The object key encodes the requested identity, not whatever hour the
// provider happened to answer with.
func (s *Service) ingestCityHour(ctx context.Context, city string, job Job) error {
	start := time.Now()

	payload, err := s.client.FetchHistory(ctx, city, job.Date, job.Hour)
	if err != nil {
		return err
	}

	cityID := objectkey.CityID(city)
	key := objectkey.RawObjectKey(cityID, job.Date, job.Hour)
	if err := s.conn.Upload(ctx, s.cfg.RawDataBucket, key, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("failed to upload raw object '%s': %w", key, err)
	}

	if s.recorder != nil {
		s.recorder.RecordFetchSuccess(cityID, time.Since(start))
		s.recorder.RecordRawWrite()
	}
	logger.Debugf("Ingest: wrote %s (%d bytes).", key, len(payload))
	return nil
}
