package influx

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pca "github.com/128technology/pca-importer/client"
)

var object = pca.MonitoredObject{ID: "27-F6694D56", ObjectType: pca.ObjectTypeTWAMPSession}

func TestEncode(t *testing.T) {
	series := pca.MetricSeries{
		"jitterAvg": {
			{Timestamp: 1752832491483, Value: 0.5},
			{Timestamp: 1752832791483, Value: math.NaN()},
		},
		"delayVarAvg": {
			{Timestamp: 1752832491483, Value: 2},
		},
	}

	var out bytes.Buffer
	require.NoError(t, NewEncoder(&out).Encode(object, pca.AggregationAvg, series))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"delayVarAvg,aggregation=avg,monitored_object_id=27-F6694D56,object_type=twamp-sf value=2 1752832491483",
		"jitterAvg,aggregation=avg,monitored_object_id=27-F6694D56,object_type=twamp-sf value=0.5 1752832491483",
	}, lines)
}

func TestEncodeEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewEncoder(&out).Encode(object, pca.AggregationAvg, pca.MetricSeries{}))
	assert.Empty(t, out.String())
}

func TestEncodeDropsMalformedSamples(t *testing.T) {
	series := pca.MetricSeries{
		"jitterAvg": {
			{Timestamp: 1752832491483, Value: 0.5},
			{Malformed: true, Value: math.NaN()},
			{Timestamp: 1752832791483, Value: 1, Malformed: true},
		},
	}

	var out bytes.Buffer
	require.NoError(t, NewEncoder(&out).Encode(object, pca.AggregationAvg, series))
	assert.Equal(t,
		"jitterAvg,aggregation=avg,monitored_object_id=27-F6694D56,object_type=twamp-sf value=0.5 1752832491483",
		strings.TrimSpace(out.String()))
}
