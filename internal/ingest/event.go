// Package ingest implements the hourly ingestion job: it resolves an
// invocation event into a list of (date, hour) jobs and fetches one raw
// observation object per configured city per job.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tigerroll/weatherlake/internal/config"
	"github.com/tigerroll/weatherlake/internal/objectkey"
	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

// ModuleIngest is the module name used for ingestion errors.
const ModuleIngest = "Ingest"

// Job is one (date, hour) ingestion target.
type Job struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Hour int    `json:"hour" validate:"gte=0,lte=23"`
}

// rawJob defers hour decoding so that numeric and string encodings are both
// accepted.
type rawJob struct {
	Date string          `json:"date"`
	Hour json.RawMessage `json:"hour"`
}

var validate = validator.New()

// ParseEvent resolves an invocation payload into the list of ingestion jobs.
//
// Three payload shapes are accepted: an empty object, which targets the
// scheduled hour derived from the configured policy and offset; a single
// {date, hour} object; and a {jobs: [...]} batch. A present but empty jobs
// array resolves to zero jobs. Any other non-empty shape is rejected. Hour
// values may be JSON numbers or numeric strings. The job list is capped at
// cfg.MaxBackfillEvents, keeping the earliest entries.
func ParseEvent(payload string, cfg *config.Config) ([]Job, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		payload = "{}"
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, exception.NewPipelineError(ModuleIngest, "failed to decode invocation event", err, false, false)
	}

	if len(fields) == 0 {
		return []Job{ScheduledJob(cfg, time.Now())}, nil
	}

	var jobs []Job
	switch {
	case fields["jobs"] != nil:
		var rawJobs []rawJob
		if err := json.Unmarshal(fields["jobs"], &rawJobs); err != nil {
			return nil, exception.NewPipelineError(ModuleIngest, "jobs must be an array of {date, hour} objects", err, false, false)
		}
		jobs = make([]Job, 0, len(rawJobs))
		for i, rj := range rawJobs {
			job, err := resolveJob(rj.Date, rj.Hour)
			if err != nil {
				return nil, exception.NewPipelineError(ModuleIngest, fmt.Sprintf("invalid job at index %d", i), err, false, false)
			}
			jobs = append(jobs, job)
		}
	case fields["date"] != nil || fields["hour"] != nil:
		var date string
		if raw := fields["date"]; raw != nil {
			if err := json.Unmarshal(raw, &date); err != nil {
				return nil, exception.NewPipelineError(ModuleIngest, "date must be a string", err, false, false)
			}
		}
		job, err := resolveJob(date, fields["hour"])
		if err != nil {
			return nil, exception.NewPipelineError(ModuleIngest, "invalid invocation event", err, false, false)
		}
		jobs = []Job{job}
	default:
		return nil, exception.NewPipelineErrorf(ModuleIngest,
			"invalid event format, use {\"date\": ..., \"hour\": ...} or {\"jobs\": [...]}")
	}

	if len(jobs) > cfg.MaxBackfillEvents {
		logger.Warnf("Event carries %d jobs, truncating to the first %d.", len(jobs), cfg.MaxBackfillEvents)
		jobs = jobs[:cfg.MaxBackfillEvents]
	}
	return jobs, nil
}

// ScheduledJob derives the job a parameterless invocation targets: the
// current or previous hour at the configured fixed offset, depending on the
// hour policy. Crossing midnight under the previous-hour policy moves the
// date back as well.
func ScheduledJob(cfg *config.Config, now time.Time) Job {
	local := now.UTC().Add(time.Duration(cfg.TZOffsetMinutes) * time.Minute)
	if cfg.DefaultHourPolicy == config.HourPolicyPrevious {
		local = local.Add(-time.Hour)
	}
	return Job{
		Date: local.Format(objectkey.DateLayout),
		Hour: local.Hour(),
	}
}

// resolveJob builds and validates a Job from its raw event fields.
func resolveJob(date string, rawHour json.RawMessage) (Job, error) {
	hour, err := coerceHour(rawHour)
	if err != nil {
		return Job{}, err
	}
	job := Job{Date: date, Hour: hour}
	if err := validate.Struct(job); err != nil {
		return Job{}, fmt.Errorf("job {date: %q, hour: %d} failed validation: %w", date, hour, err)
	}
	return job, nil
}

// coerceHour accepts an hour encoded as a JSON number or as a numeric string.
func coerceHour(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("hour is required")
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("hour must be a number or numeric string, got %s", string(raw))
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("hour string %q is not numeric", s)
	}
	return n, nil
}
