package transform_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherlake/internal/objectkey"
	"github.com/tigerroll/weatherlake/internal/storage"
	storageConfig "github.com/tigerroll/weatherlake/internal/storage/config"
	"github.com/tigerroll/weatherlake/internal/storage/local"
	"github.com/tigerroll/weatherlake/internal/transform"
)

const (
	rawBucket       = "raw-bucket"
	processedBucket = "processed-bucket"
)

func rawPayload(city string, epoch int64) string {
	return fmt.Sprintf(`{
		"location": {"name": %q, "region": "", "country": "UK", "lat": 51.52, "lon": -0.11, "tz_id": "Europe/London"},
		"forecast": {"forecastday": [{"date": "2024-01-15", "hour": [
			{"time_epoch": %d, "time": "2024-01-15 10:00", "temp_c": 5.5, "temp_f": 41.9,
			 "humidity": 80, "pressure_mb": 1012.0, "wind_kph": 10.1, "precip_mm": 0.2,
			 "cloud": 75, "vis_km": 10.0, "uv": 1.0}
		]}]}
	}`, city, epoch)
}

func newTestStep(t *testing.T) (*transform.Step, storage.Connection, string) {
	t.Helper()

	baseDir := t.TempDir()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: baseDir}, "test")
	require.NoError(t, err)

	w, err := transform.NewParquetWriter(
		"testWriter",
		map[string]string{"outputBaseDir": "processed", "compressionType": "SNAPPY"},
		conn,
		processedBucket,
		new(transform.ProcessedRecord),
		func(r transform.ProcessedRecord) (string, error) { return r.PartitionKey(), nil },
	)
	require.NoError(t, err)

	return transform.NewStep(conn, w, nil), conn, baseDir
}

// putRaw stores one raw observation object and returns its reference.
func putRaw(t *testing.T, conn storage.Connection, cityID, date string, hour int, payload string) string {
	t.Helper()
	key := objectkey.RawObjectKey(cityID, date, hour)
	require.NoError(t, conn.Upload(context.Background(), rawBucket, key, bytes.NewReader([]byte(payload)), "application/json"))
	return objectkey.ObjectURI(conn.Scheme(), rawBucket, key)
}

func TestStepExecuteEmptyWorklist(t *testing.T) {
	step, _, _ := newTestStep(t)

	summary, err := step.Execute(context.Background(), map[string][]string{})
	require.NoError(t, err)
	assert.Equal(t, transform.Summary{}, summary)
}

func TestStepExecuteWritesPartitionedParquet(t *testing.T) {
	step, conn, baseDir := newTestStep(t)

	ref1 := putRaw(t, conn, "london", "2024-01-15", 10, rawPayload("London", 1705312800))
	ref2 := putRaw(t, conn, "paris", "2024-01-15", 9, rawPayload("Paris", 1705309200))
	ref3 := putRaw(t, conn, "london", "2024-01-14", 23, rawPayload("London", 1705272600))

	summary, err := step.Execute(context.Background(), map[string][]string{
		"2024-01-15": {ref1, ref2},
		"2024-01-14": {ref3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.RecordsProcessed)
	assert.Equal(t, 0, summary.FilesFailed)

	// Each unit lands in its own partition directory; the hour component is
	// unpadded.
	for _, partition := range []string{
		"processed/dt=2024-01-15/city=london/hour=10",
		"processed/dt=2024-01-15/city=paris/hour=9",
		"processed/dt=2024-01-14/city=london/hour=23",
	} {
		matches, err := filepath.Glob(filepath.Join(baseDir, processedBucket, filepath.FromSlash(partition), "data_*.parquet"))
		require.NoError(t, err)
		require.Len(t, matches, 1, "expected one parquet file in %s", partition)

		info, err := os.Stat(matches[0])
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestStepExecuteFailedObjectFailsTheBatch(t *testing.T) {
	step, conn, baseDir := newTestStep(t)

	good := putRaw(t, conn, "london", "2024-01-15", 10, rawPayload("London", 1705312800))
	missing := objectkey.ObjectURI(conn.Scheme(), rawBucket, objectkey.RawObjectKey("paris", "2024-01-15", 9))

	summary, err := step.Execute(context.Background(), map[string][]string{
		"2024-01-15": {good, missing},
	})
	require.Error(t, err)
	assert.Equal(t, 0, summary.RecordsProcessed)
	// One unreadable object marks every object in the batch failed.
	assert.Equal(t, 2, summary.FilesFailed)

	// No partial parquet output was produced.
	matches, globErr := filepath.Glob(filepath.Join(baseDir, processedBucket, "processed", "*", "*", "*", "data_*.parquet"))
	require.NoError(t, globErr)
	assert.Empty(t, matches)
}

func TestStepExecuteRejectsUndecodablePayload(t *testing.T) {
	step, conn, _ := newTestStep(t)

	bad := putRaw(t, conn, "london", "2024-01-15", 10, "not json at all")
	empty := putRaw(t, conn, "paris", "2024-01-15", 9, `{"location": {}, "forecast": {"forecastday": []}}`)

	summary, err := step.Execute(context.Background(), map[string][]string{
		"2024-01-15": {bad, empty},
	})
	require.Error(t, err)
	assert.Equal(t, 0, summary.RecordsProcessed)
	assert.Equal(t, 2, summary.FilesFailed)
}

func TestStepAppendsNewFilesPerRun(t *testing.T) {
	step, conn, baseDir := newTestStep(t)

	ref := putRaw(t, conn, "london", "2024-01-15", 10, rawPayload("London", 1705312800))
	worklist := map[string][]string{"2024-01-15": {ref}}

	for i := 0; i < 2; i++ {
		_, err := step.Execute(context.Background(), worklist)
		require.NoError(t, err)
	}

	// Two runs over the same unit yield two distinct files, never an
	// overwrite.
	matches, err := filepath.Glob(filepath.Join(baseDir, processedBucket,
		filepath.FromSlash("processed/dt=2024-01-15/city=london/hour=10"), "data_*.parquet"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
