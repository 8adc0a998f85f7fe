package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherlake/internal/metrics"
)

func TestRecorderCounters(t *testing.T) {
	r := metrics.NewRecorder()

	r.RecordFetchSuccess("london", 120*time.Millisecond)
	r.RecordFetchSuccess("london", 80*time.Millisecond)
	r.RecordFetchFailure("paris")
	r.RecordRawWrite()
	r.RecordPlan(3, 5, 40*time.Millisecond)
	r.RecordTransform(5, 0, 900*time.Millisecond)

	families, err := r.GetRegistry().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["weatherlake_fetch_success_total"])
	assert.Equal(t, 1.0, values["weatherlake_fetch_failure_total"])
	assert.Equal(t, 1.0, values["weatherlake_raw_objects_written_total"])
	assert.Equal(t, 3.0, values["weatherlake_planner_dates_examined_total"])
	assert.Equal(t, 5.0, values["weatherlake_planner_units_planned_total"])
	assert.Equal(t, 5.0, values["weatherlake_transform_records_total"])
}

func TestRecorderRegistriesAreIndependent(t *testing.T) {
	a := metrics.NewRecorder()
	b := metrics.NewRecorder()
	a.RecordRawWrite()

	families, err := b.GetRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "weatherlake_raw_objects_written_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			assert.Equal(t, 0.0, m.GetCounter().GetValue())
		}
	}
}
