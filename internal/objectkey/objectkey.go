// Package objectkey encodes and decodes the object-store key layout shared by
// the raw and processed weather hierarchies.
//
// Raw observations live under `historical/dt=<date>/<city_id>_<HH>.json`;
// processed partitions live under `processed/dt=<date>/city=<city_id>/hour=<hour>/`.
// Both sides must agree on city-identifier normalization or reconciliation
// silently fails to match, so every component goes through this package.
package objectkey

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/weatherlake/internal/support/util/exception"
)

const (
	// RawRootPrefix is the common prefix of every raw date partition.
	RawRootPrefix = "historical/dt="
	// ProcessedRootPrefix is the common prefix of every processed date partition.
	ProcessedRootPrefix = "processed/dt="
	// RawObjectSuffix is the file suffix of raw observation objects.
	RawObjectSuffix = ".json"
	// DateLayout is the calendar layout used in partition keys.
	DateLayout = "2006-01-02"

	moduleName = "objectkey"
)

// CityID derives the storage identifier for a configured city name:
// lowercase, spaces replaced with underscores.
func CityID(cityName string) string {
	return strings.ReplaceAll(strings.ToLower(cityName), " ", "_")
}

// RawObjectKey builds the raw storage key for one observation unit.
// The hour is zero-padded to two digits; the date is passed through verbatim
// (callers supply YYYY-MM-DD).
func RawObjectKey(cityID, date string, hour int) string {
	return fmt.Sprintf("historical/dt=%s/%s_%02d.json", date, cityID, hour)
}

// RawDatePrefix returns the listing prefix of a single raw date partition.
func RawDatePrefix(date string) string {
	return fmt.Sprintf("historical/dt=%s/", date)
}

// ProcessedDatePrefix returns the listing prefix of a single processed date partition.
func ProcessedDatePrefix(date string) string {
	return fmt.Sprintf("processed/dt=%s/", date)
}

// ProcessedPartitionKey builds the partition key of a processed unit, relative
// to the processed root: `dt=<date>/city=<city_id>/hour=<hour>`.
// The hour is intentionally not zero-padded; consumers parse it as an integer.
func ProcessedPartitionKey(date, cityID string, hour int) string {
	return fmt.Sprintf("dt=%s/city=%s/hour=%d", date, cityID, hour)
}

// ParseRawObjectKey decodes a raw object key (or bare filename) into its
// (cityID, hour) pair. The filename is split on the last underscore before the
// `.json` suffix; the identifier portion is everything before that suffix and
// may itself contain underscores. An error is returned when the suffix is not
// a valid integer or the filename has fewer than two underscore-delimited
// parts; callers are expected to log and skip such keys.
func ParseRawObjectKey(key string) (string, int, error) {
	filename := path.Base(key)
	if !strings.HasSuffix(filename, RawObjectSuffix) {
		return "", 0, exception.NewPipelineErrorf(moduleName, "raw object key %q does not end with %s", key, RawObjectSuffix)
	}
	baseName := strings.TrimSuffix(filename, RawObjectSuffix)

	parts := strings.Split(baseName, "_")
	if len(parts) < 2 {
		return "", 0, exception.NewPipelineErrorf(moduleName, "raw object key %q has no hour suffix", key)
	}

	hour, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", 0, exception.NewPipelineError(moduleName, fmt.Sprintf("raw object key %q has a non-numeric hour suffix", key), err, true, false)
	}

	cityID := strings.Join(parts[:len(parts)-1], "_")
	return cityID, hour, nil
}

// ParseDateFromPrefix extracts and validates the calendar date from a
// date-partition prefix such as `historical/dt=2024-01-15/`, or from a full
// object key below such a prefix.
func ParseDateFromPrefix(prefix string) (string, error) {
	idx := strings.Index(prefix, "dt=")
	if idx < 0 {
		return "", exception.NewPipelineErrorf(moduleName, "prefix %q carries no dt= component", prefix)
	}
	dateStr := prefix[idx+len("dt="):]
	if slash := strings.Index(dateStr, "/"); slash >= 0 {
		dateStr = dateStr[:slash]
	}
	if _, err := time.Parse(DateLayout, dateStr); err != nil {
		return "", exception.NewPipelineError(moduleName, fmt.Sprintf("invalid date format %q in prefix %q", dateStr, prefix), err, true, false)
	}
	return dateStr, nil
}

// ParseCityFromPrefix extracts the city identifier from a processed city-level
// prefix such as `processed/dt=2024-01-15/city=london/`. The second return
// value reports whether the prefix carried a city component at all.
func ParseCityFromPrefix(prefix string) (string, bool) {
	idx := strings.Index(prefix, "city=")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSuffix(prefix[idx+len("city="):], "/"), true
}

// ParseHourFromPrefix extracts the hour from a processed hour-level prefix such
// as `processed/dt=2024-01-15/city=london/hour=9/`. The hour is parsed as an
// integer, so both padded and unpadded encodings match. The second return value
// is false for prefixes without a valid hour component.
func ParseHourFromPrefix(prefix string) (int, bool) {
	idx := strings.Index(prefix, "hour=")
	if idx < 0 {
		return 0, false
	}
	hourStr := strings.TrimSuffix(prefix[idx+len("hour="):], "/")
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, false
	}
	return hour, true
}

// ObjectURI builds a fully-qualified object reference (scheme + bucket + key),
// e.g. `gs://raw-bucket/historical/dt=2024-01-15/london_10.json`.
func ObjectURI(scheme, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, bucket, key)
}

// ParseObjectURI splits a fully-qualified object reference back into its
// bucket and key components. The scheme is not interpreted.
func ParseObjectURI(uri string) (bucket, key string, err error) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", "", exception.NewPipelineErrorf(moduleName, "object reference %q carries no scheme", uri)
	}
	rest := uri[idx+len("://"):]
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", exception.NewPipelineErrorf(moduleName, "object reference %q carries no bucket/key split", uri)
	}
	return rest[:slash], rest[slash+1:], nil
}
