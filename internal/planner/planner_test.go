package planner_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherlake/internal/planner"
	"github.com/tigerroll/weatherlake/internal/storage"
)

// fakeConnection is an in-memory Connection whose listing behavior mirrors a
// delimiter-based object store: objects are flat keys, common prefixes are
// derived on the fly.
type fakeConnection struct {
	// objects maps bucket to a set of object keys.
	objects map[string]map[string][]byte
	// failProbePrefixes holds prefixes whose existence probe returns an error.
	failProbePrefixes map[string]bool
	// failListPrefixes holds prefixes whose listing returns an error.
	failListPrefixes map[string]bool
}

var _ storage.Connection = (*fakeConnection)(nil)

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		objects:           make(map[string]map[string][]byte),
		failProbePrefixes: make(map[string]bool),
		failListPrefixes:  make(map[string]bool),
	}
}

func (f *fakeConnection) put(bucket, key string) {
	if f.objects[bucket] == nil {
		f.objects[bucket] = make(map[string][]byte)
	}
	f.objects[bucket][key] = []byte("{}")
}

func (f *fakeConnection) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.objects[bucket] == nil {
		f.objects[bucket] = make(map[string][]byte)
	}
	f.objects[bucket][objectName] = body
	return nil
}

func (f *fakeConnection) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	body, ok := f.objects[bucket][objectName]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, objectName)
	}
	return io.NopCloser(strings.NewReader(string(body))), nil
}

func (f *fakeConnection) ListObjects(ctx context.Context, bucket, prefix string, fn func(string) error) error {
	if f.failListPrefixes[prefix] {
		return errors.New("injected listing failure")
	}
	var keys []string
	for key := range f.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeConnection) ListCommonPrefixes(ctx context.Context, bucket, prefix, delimiter string, fn func(string) error) error {
	if f.failListPrefixes[prefix] {
		return errors.New("injected listing failure")
	}
	seen := make(map[string]bool)
	var prefixes []string
	for key := range f.objects[bucket] {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		idx := strings.Index(rest, delimiter)
		if idx < 0 {
			continue
		}
		common := prefix + rest[:idx+len(delimiter)]
		if !seen[common] {
			seen[common] = true
			prefixes = append(prefixes, common)
		}
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeConnection) Exists(ctx context.Context, bucket, prefix string) (bool, error) {
	if f.failProbePrefixes[prefix] {
		return false, errors.New("injected probe failure")
	}
	for key := range f.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeConnection) Scheme() string { return "fake" }
func (f *fakeConnection) Type() string   { return "fake" }
func (f *fakeConnection) Name() string   { return "fake" }
func (f *fakeConnection) Close() error   { return nil }

const (
	rawBucket       = "raw-bucket"
	processedBucket = "processed-bucket"
)

func TestPlanReconciliation(t *testing.T) {
	// Raw files exist for two dates; one (city, hour) unit of the newest date
	// is already processed. The plan must contain exactly the other units.
	conn := newFakeConnection()
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json")
	conn.put(rawBucket, "historical/dt=2024-01-15/london_11.json")
	conn.put(rawBucket, "historical/dt=2024-01-15/paris_09.json")
	conn.put(rawBucket, "historical/dt=2024-01-14/london_10.json")
	conn.put(processedBucket, "processed/dt=2024-01-15/city=london/hour=10/data_1.parquet")

	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)
	worklist, err := p.Plan(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, worklist, 2)
	assert.ElementsMatch(t, []string{
		"fake://raw-bucket/historical/dt=2024-01-15/london_11.json",
		"fake://raw-bucket/historical/dt=2024-01-15/paris_09.json",
	}, worklist["2024-01-15"])
	assert.Equal(t, []string{
		"fake://raw-bucket/historical/dt=2024-01-14/london_10.json",
	}, worklist["2024-01-14"])
}

func TestPlanFullyProcessedDateContributesNothing(t *testing.T) {
	conn := newFakeConnection()
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json")
	conn.put(processedBucket, "processed/dt=2024-01-15/city=london/hour=10/data_1.parquet")

	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)
	worklist, err := p.Plan(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, worklist)
}

func TestPlanEmptyRawStore(t *testing.T) {
	conn := newFakeConnection()
	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)

	worklist, err := p.Plan(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, worklist)
	assert.Empty(t, worklist)
}

func TestPlanMaxDaysCountsOnlyDatesWithWork(t *testing.T) {
	// Three raw dates; the newest is fully processed so it must not consume
	// the cap. With maxDays=1 the plan covers exactly the next newest date
	// with unprocessed work.
	conn := newFakeConnection()
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json")
	conn.put(rawBucket, "historical/dt=2024-01-14/london_10.json")
	conn.put(rawBucket, "historical/dt=2024-01-13/london_10.json")
	conn.put(processedBucket, "processed/dt=2024-01-15/city=london/hour=10/data_1.parquet")

	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)
	worklist, err := p.Plan(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, worklist, 1)
	assert.Contains(t, worklist, "2024-01-14")
	assert.NotContains(t, worklist, "2024-01-13")
}

func TestPlanProbeFailureSkipsDateOnly(t *testing.T) {
	// The existence probe of one date fails; that date is skipped while the
	// others still plan. Probe failure is never conflated with absence.
	conn := newFakeConnection()
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json")
	conn.put(rawBucket, "historical/dt=2024-01-14/paris_09.json")
	conn.failProbePrefixes["processed/dt=2024-01-15/"] = true

	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)
	worklist, err := p.Plan(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, worklist, 1)
	assert.NotContains(t, worklist, "2024-01-15")
	assert.Equal(t, []string{
		"fake://raw-bucket/historical/dt=2024-01-14/paris_09.json",
	}, worklist["2024-01-14"])
}

func TestPlanTopLevelListingFailureIsFatal(t *testing.T) {
	conn := newFakeConnection()
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json")
	conn.failListPrefixes["historical/dt="] = true

	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)
	_, err := p.Plan(context.Background(), 7)
	assert.Error(t, err)
}

func TestPlanSkipsMalformedKeysAndPartitions(t *testing.T) {
	conn := newFakeConnection()
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json")
	// An undecodable filename and a non-JSON object in the same partition.
	conn.put(rawBucket, "historical/dt=2024-01-15/README.json")
	conn.put(rawBucket, "historical/dt=2024-01-15/london_10.json.tmp")
	// A date partition that does not parse as a calendar date.
	conn.put(rawBucket, "historical/dt=garbage/london_10.json")

	p := planner.NewPlanner(conn, rawBucket, processedBucket, nil)
	worklist, err := p.Plan(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, worklist, 1)
	assert.Equal(t, []string{
		"fake://raw-bucket/historical/dt=2024-01-15/london_10.json",
	}, worklist["2024-01-15"])
}
