// Package planner implements the incremental-transform planner: the
// reconciliation of the raw observation hierarchy against the processed
// parquet hierarchy that decides which (city, date, hour) units still need to
// be materialized.
//
// Listing is hierarchical (delimiter-based common-prefix enumeration) rather
// than a flat scan: the raw and processed hierarchies grow unbounded over
// time, and per-date, per-city scoping keeps every listing call bounded while
// allowing early termination once enough recent unprocessed dates are found.
package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tigerroll/weatherlake/internal/metrics"
	"github.com/tigerroll/weatherlake/internal/objectkey"
	"github.com/tigerroll/weatherlake/internal/storage"
	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

const ModulePlanner = "Planner"

// processedUnit is one (cityID, hour) pair already materialized for a date.
type processedUnit struct {
	cityID string
	hour   int
}

// Planner computes the work-list of unprocessed observation units.
// The storage connection and bucket names are injected so the planner can be
// exercised against fake listing backends.
type Planner struct {
	conn            storage.Connection
	rawBucket       string
	processedBucket string
	recorder        *metrics.Recorder
}

// NewPlanner creates a Planner over the given storage connection.
// recorder may be nil; planning then runs unmetered.
func NewPlanner(conn storage.Connection, rawBucket, processedBucket string, recorder *metrics.Recorder) *Planner {
	return &Planner{
		conn:            conn,
		rawBucket:       rawBucket,
		processedBucket: processedBucket,
		recorder:        recorder,
	}
}

// Plan returns the mapping from date string to the fully-qualified raw object
// references that have no processed counterpart, covering at most maxDays
// dates. Dates are visited newest-first and only dates that yield work count
// toward the cap. An empty mapping with a nil error is the terminal success
// state when no raw dates (or no unprocessed units) exist.
//
// A failure to enumerate the raw date partitions at the top level is fatal and
// propagates: there is no meaningful partial result without knowing which
// dates exist. Every failure scoped to a single date is logged and recovered
// by treating that date as contributing nothing.
func (p *Planner) Plan(ctx context.Context, maxDays int) (map[string][]string, error) {
	start := time.Now()

	rawDates, err := p.listRawDates(ctx)
	if err != nil {
		return nil, exception.NewPipelineError(ModulePlanner, "Failed to enumerate raw date partitions", err, false, false)
	}
	if len(rawDates) == 0 {
		logger.Infof("No raw data dates found.")
		return map[string][]string{}, nil
	}

	// Newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(rawDates)))
	logger.Infof("Found %d raw data dates; newest: %s", len(rawDates), rawDates[0])

	worklist := make(map[string][]string)
	datesWithWork := 0
	datesExamined := 0
	unitsPlanned := 0

	for _, date := range rawDates {
		if datesWithWork >= maxDays {
			logger.Infof("Reached max lookback of %d dates with unprocessed work; stopping.", maxDays)
			break
		}
		datesExamined++

		refs, err := p.planDate(ctx, date)
		if err != nil {
			// One bad date must not halt reconciliation of the others.
			logger.Errorf("Error planning date %s: %v", date, err)
			continue
		}
		if len(refs) == 0 {
			continue
		}

		worklist[date] = refs
		unitsPlanned += len(refs)
		datesWithWork++
		logger.Infof("Date %s: %d unprocessed files.", date, len(refs))
	}

	if p.recorder != nil {
		p.recorder.RecordPlan(datesExamined, unitsPlanned, time.Since(start))
	}
	logger.Infof("Found unprocessed files in %d dates.", len(worklist))
	return worklist, nil
}

// listRawDates enumerates the raw date partitions with one delimiter-based
// listing call and returns every prefix that parses as a valid calendar date.
// Invalid date components are logged and skipped.
func (p *Planner) listRawDates(ctx context.Context) ([]string, error) {
	var dates []string
	err := p.conn.ListCommonPrefixes(ctx, p.rawBucket, objectkey.RawRootPrefix, "/", func(prefix string) error {
		date, err := objectkey.ParseDateFromPrefix(prefix)
		if err != nil {
			logger.Warnf("Skipping invalid date partition %q: %v", prefix, err)
			return nil
		}
		dates = append(dates, date)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dates, nil
}

// planDate reconciles a single date: lists its raw objects, enumerates the
// processed (city, hour) set, and returns references for the difference.
// An empty slice means the date contributes nothing (already processed, or no
// raw JSON files).
func (p *Planner) planDate(ctx context.Context, date string) ([]string, error) {
	rawKeys, err := p.listRawKeys(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw objects: %w", err)
	}
	if len(rawKeys) == 0 {
		logger.Debugf("No JSON files found for date %s.", date)
		return nil, nil
	}

	processed, err := p.listProcessedUnits(ctx, date)
	if err != nil {
		// The probe result is typed: an inspection failure is a per-date
		// recoverable error, never silently treated as "nothing processed yet".
		return nil, fmt.Errorf("failed to enumerate processed partitions: %w", err)
	}

	var refs []string
	for _, key := range rawKeys {
		cityID, hour, err := objectkey.ParseRawObjectKey(key)
		if err != nil {
			logger.Warnf("Skipping raw key with invalid filename %q: %v", key, err)
			continue
		}
		if _, done := processed[processedUnit{cityID: cityID, hour: hour}]; done {
			continue
		}
		refs = append(refs, objectkey.ObjectURI(p.conn.Scheme(), p.rawBucket, key))
	}

	if len(refs) == 0 {
		logger.Debugf("Date %s: all files already processed.", date)
	}
	return refs, nil
}

// listRawKeys lists the raw object keys of one date partition, keeping only
// keys with the raw-file suffix.
func (p *Planner) listRawKeys(ctx context.Context, date string) ([]string, error) {
	var keys []string
	err := p.conn.ListObjects(ctx, p.rawBucket, objectkey.RawDatePrefix(date), func(key string) error {
		if len(key) >= len(objectkey.RawObjectSuffix) && key[len(key)-len(objectkey.RawObjectSuffix):] == objectkey.RawObjectSuffix {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// listProcessedUnits probes the processed date prefix and, when it exists,
// enumerates its city- and hour-level partitions into a set of processed
// (cityID, hour) pairs. A clean not-found probe yields an empty set: that is
// the expected state for a never-processed date, not an error. Hour prefixes
// that do not parse as integers are skipped.
func (p *Planner) listProcessedUnits(ctx context.Context, date string) (map[processedUnit]struct{}, error) {
	units := make(map[processedUnit]struct{})

	datePrefix := objectkey.ProcessedDatePrefix(date)
	found, err := p.conn.Exists(ctx, p.processedBucket, datePrefix)
	if err != nil {
		return nil, fmt.Errorf("existence probe failed for %q: %w", datePrefix, err)
	}
	if !found {
		logger.Debugf("No processed data found for date %s.", date)
		return units, nil
	}

	err = p.conn.ListCommonPrefixes(ctx, p.processedBucket, datePrefix, "/", func(cityPrefix string) error {
		cityID, ok := objectkey.ParseCityFromPrefix(cityPrefix)
		if !ok {
			return nil
		}
		return p.conn.ListCommonPrefixes(ctx, p.processedBucket, cityPrefix, "/", func(hourPrefix string) error {
			hour, ok := objectkey.ParseHourFromPrefix(hourPrefix)
			if !ok {
				return nil
			}
			units[processedUnit{cityID: cityID, hour: hour}] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}
