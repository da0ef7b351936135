package influx

import (
	"fmt"
	"io"
	"math"
	"sort"

	influxdb "github.com/influxdata/influxdb1-client/v2"

	pca "github.com/128technology/pca-importer/client"
)

// Precision of the emitted timestamps.
const Precision = "ms"

// Encoder writes metric series as InfluxDB line protocol.
type Encoder struct {
	out io.Writer
}

// NewEncoder creates an Encoder writing to out.
func NewEncoder(out io.Writer) *Encoder {
	return &Encoder{out: out}
}

// Points converts a series into points tagged with the monitored object.
// Malformed samples and samples without a value are dropped. Points are
// ordered by metric name and then by sample order.
func Points(object pca.MonitoredObject, aggregation pca.Aggregation, series pca.MetricSeries) ([]*influxdb.Point, error) {
	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{Precision: Precision})
	if err != nil {
		return nil, err
	}

	tags := map[string]string{
		"monitored_object_id": object.ID,
		"object_type":         object.ObjectType,
		"aggregation":         string(aggregation),
	}

	names := series.Names()
	sort.Strings(names)

	for _, metric := range names {
		for _, sample := range series[metric] {
			if sample.Malformed || math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
				continue
			}

			fields := map[string]interface{}{"value": sample.Value}
			pt, err := influxdb.NewPoint(metric, tags, fields, sample.Time())
			if err != nil {
				return nil, err
			}

			bp.AddPoint(pt)
		}
	}

	return bp.Points(), nil
}

// Encode writes one line per sample of series.
func (e *Encoder) Encode(object pca.MonitoredObject, aggregation pca.Aggregation, series pca.MetricSeries) error {
	points, err := Points(object, aggregation, series)
	if err != nil {
		return err
	}

	for _, pt := range points {
		if _, err := fmt.Fprintln(e.out, pt.PrecisionString(Precision)); err != nil {
			return err
		}
	}

	return nil
}
