package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/weatherlake/internal/metrics"
	"github.com/tigerroll/weatherlake/internal/objectkey"
	"github.com/tigerroll/weatherlake/internal/storage"
	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
	"github.com/tigerroll/weatherlake/internal/weather"
)

// ModuleTransform is the module name used for transform errors.
const ModuleTransform = "Transform"

// Summary reports the outcome of one transform run.
type Summary struct {
	// RecordsProcessed is the number of analytics records written.
	RecordsProcessed int
	// FilesFailed is the number of raw objects in the batch when the run
	// fails. The run is all-or-nothing, so a single bad object marks every
	// object in the batch failed.
	FilesFailed int
}

// Step reads raw observation objects, projects them into flat analytics
// records, and writes them through a per-partition parquet writer. A run is
// all-or-nothing at the batch level: any failed object fails the whole run.
type Step struct {
	conn     storage.Connection
	writer   *ParquetWriter[ProcessedRecord]
	recorder *metrics.Recorder
}

// NewStep creates a transform Step. recorder may be nil, in which case no
// metrics are recorded.
func NewStep(conn storage.Connection, w *ParquetWriter[ProcessedRecord], recorder *metrics.Recorder) *Step {
	return &Step{conn: conn, writer: w, recorder: recorder}
}

// Execute processes every raw object reference in worklist. References that
// fail to read, decode, or project are counted and reported together; a
// single failure marks the whole run failed so orchestration retries the
// batch, but no partial parquet output is produced for the failed objects.
func (s *Step) Execute(ctx context.Context, worklist map[string][]string) (Summary, error) {
	start := time.Now()

	refs := flattenWorklist(worklist)
	if len(refs) == 0 {
		logger.Infof("Transform: no unprocessed raw objects, nothing to do.")
		return Summary{}, nil
	}
	logger.Infof("Transform: processing %d raw objects across %d dates.", len(refs), len(worklist))

	var multiErr error
	records := make([]ProcessedRecord, 0, len(refs))
	failed := 0

	for _, ref := range refs {
		record, err := s.processObject(ctx, ref)
		if err != nil {
			logger.Errorf("Transform: failed to process '%s': %v", ref, err)
			multiErr = multierror.Append(multiErr, err)
			failed++
			continue
		}
		records = append(records, record)
	}

	if failed == 0 {
		if err := s.writer.Write(ctx, records); err != nil {
			multiErr = multierror.Append(multiErr, err)
			failed = len(refs)
		} else if err := s.writer.Flush(ctx); err != nil {
			multiErr = multierror.Append(multiErr, err)
			failed = len(refs)
		}
	}

	if failed > 0 {
		// The run is all-or-nothing: once anything fails the whole batch is
		// reported failed so orchestration retries every object.
		summary := Summary{RecordsProcessed: 0, FilesFailed: len(refs)}
		if s.recorder != nil {
			s.recorder.RecordTransform(0, len(refs), time.Since(start))
		}
		return summary, exception.NewPipelineError(ModuleTransform,
			fmt.Sprintf("%d of %d raw objects failed to transform", failed, len(refs)), multiErr, false, true)
	}

	summary := Summary{RecordsProcessed: len(records)}
	if s.recorder != nil {
		s.recorder.RecordTransform(len(records), 0, time.Since(start))
	}
	logger.Infof("Transform: wrote %d records in %s.", len(records), time.Since(start).Round(time.Millisecond))
	return summary, nil
}

// processObject downloads one raw object and projects it into a
// ProcessedRecord. The unit identity (city, hour, date) comes from the
// object key, not from the payload, so a payload for the wrong hour still
// lands in the partition the ingest run targeted.
func (s *Step) processObject(ctx context.Context, ref string) (ProcessedRecord, error) {
	bucket, key, err := objectkey.ParseObjectURI(ref)
	if err != nil {
		return ProcessedRecord{}, err
	}

	cityID, hour, err := objectkey.ParseRawObjectKey(key)
	if err != nil {
		return ProcessedRecord{}, err
	}
	sourceDate, err := objectkey.ParseDateFromPrefix(key)
	if err != nil {
		return ProcessedRecord{}, err
	}

	rc, err := s.conn.Download(ctx, bucket, key)
	if err != nil {
		return ProcessedRecord{}, fmt.Errorf("failed to download '%s': %w", ref, err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return ProcessedRecord{}, fmt.Errorf("failed to read '%s': %w", ref, err)
	}

	var resp weather.HistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ProcessedRecord{}, fmt.Errorf("failed to decode '%s': %w", ref, err)
	}

	obs, ok := resp.FirstHour()
	if !ok {
		return ProcessedRecord{}, fmt.Errorf("raw object '%s' carries no hourly observation", ref)
	}

	return ProcessedRecord{
		CityName:        resp.Location.Name,
		Region:          resp.Location.Region,
		Country:         resp.Location.Country,
		Latitude:        resp.Location.Lat,
		Longitude:       resp.Location.Lon,
		Timezone:        resp.Location.TzID,
		ForecastDate:    resp.FirstForecastDate(),
		TimestampEpoch:  obs.TimeEpoch,
		ObservationTime: obs.Time,
		TemperatureC:    obs.TempC,
		TemperatureF:    obs.TempF,
		Humidity:        obs.Humidity,
		PressureMb:      obs.PressureMb,
		WindSpeedKph:    obs.WindKph,
		PrecipitationMm: obs.PrecipMm,
		CloudCover:      obs.Cloud,
		VisibilityKm:    obs.VisKm,
		UVIndex:         obs.UV,
		CityID:          cityID,
		Hour:            int32(hour),
		SourceDate:      sourceDate,
		ProcessingTime:  time.Now().UTC().UnixMilli(),
	}, nil
}

// flattenWorklist flattens the planner's per-date worklist into a single
// slice of object references, preserving the per-date ordering.
func flattenWorklist(worklist map[string][]string) []string {
	dates := make([]string, 0, len(worklist))
	for date := range worklist {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var refs []string
	for _, date := range dates {
		refs = append(refs, worklist[date]...)
	}
	return refs
}
