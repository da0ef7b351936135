package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// AggregateRequest is the JSON:API envelope posted to the aggregate endpoint.
type AggregateRequest struct {
	Data AggregateRequestData `json:"data"`
}

// AggregateRequestData holds the resource type and attributes of an AggregateRequest.
type AggregateRequestData struct {
	Type       string              `json:"type"`
	Attributes AggregateAttributes `json:"attributes"`
}

// MetricFilterContext restricts an aggregate query to specific monitored objects.
type MetricFilterContext struct {
	MonitoredObjectID []string `json:"monitoredObjectId"`
}

// AggregateAttributes are the query parameters of an aggregate request.
type AggregateAttributes struct {
	Aggregation               Aggregation          `json:"aggregation"`
	Granularity               string               `json:"granularity"`
	Interval                  string               `json:"interval"`
	Metrics                   []MetricDefinition   `json:"metrics"`
	QueryContext              QueryContext         `json:"queryContext"`
	GlobalMetricFilterContext *MetricFilterContext `json:"globalMetricFilterContext,omitempty"`
}

// AggregateResponse is the body returned by a successful aggregate request.
type AggregateResponse struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Result []AggregateResult `json:"result"`
		} `json:"attributes"`
	} `json:"data"`
}

// AggregateResult is one entry of the aggregate result array. Raw holds the
// entry exactly as the server sent it.
type AggregateResult struct {
	Metric string          `json:"metric"`
	Series []Sample        `json:"series"`
	Raw    json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the result and keeps a copy of the raw entry.
func (r *AggregateResult) UnmarshalJSON(data []byte) error {
	type plain AggregateResult
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*r = AggregateResult(decoded)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON reproduces the raw entry when one was decoded.
func (r AggregateResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) != 0 {
		return r.Raw, nil
	}

	type plain AggregateResult
	return json.Marshal(plain(r))
}

// Sample is one aggregated point of a series. Timestamp is in epoch
// milliseconds. Malformed is set when the timestamp or value could not be
// decoded; Raw still holds the sample as the server sent it.
type Sample struct {
	Timestamp int64
	Value     float64
	Malformed bool
	Raw       json.RawMessage
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

var (
	timestampKeys = []string{"ts", "timestamp", "time", "date"}
	valueKeys     = []string{"val", "value"}
)

// UnmarshalJSON accepts either an object carrying a timestamp and a value
// (ts/timestamp/time/date and val/value) or a [timestamp, value] pair. It
// never fails on content: a sample it cannot interpret is kept with
// Malformed set, a NaN value and a zero timestamp.
func (s *Sample) UnmarshalJSON(data []byte) error {
	*s = Sample{
		Value:     math.NaN(),
		Malformed: true,
		Raw:       append(json.RawMessage(nil), data...),
	}

	fields, ok := sampleFields(bytes.TrimSpace(data))
	if !ok {
		return nil
	}

	ts, ok := firstField(fields, timestampKeys)
	if !ok {
		return nil
	}

	timestamp, err := parseTimestamp(ts)
	if err != nil {
		return nil
	}

	value := math.NaN()
	if v, ok := firstField(fields, valueKeys); ok && string(v) != "null" {
		if value, err = parseValue(v); err != nil {
			return nil
		}
	}

	s.Timestamp = timestamp
	s.Value = value
	s.Malformed = false
	return nil
}

func sampleFields(data []byte) (map[string]json.RawMessage, bool) {
	if len(data) > 0 && data[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
			return nil, false
		}
		return map[string]json.RawMessage{"ts": pair[0], "val": pair[1]}, true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func parseValue(raw json.RawMessage) (float64, error) {
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, errors.Wrapf(err, "decoding sample value %s", raw)
	}
	return number.Float64()
}

// MarshalJSON reproduces the raw sample when one was decoded.
func (s Sample) MarshalJSON() ([]byte, error) {
	if len(s.Raw) != 0 {
		return s.Raw, nil
	}

	out := map[string]interface{}{"timestamp": s.Timestamp, "value": nil}
	if !math.IsNaN(s.Value) {
		out["value"] = s.Value
	}
	return json.Marshal(out)
}

func firstField(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		if ms, err := number.Int64(); err == nil {
			return ms, nil
		}
		f, err := number.Float64()
		if err != nil {
			return 0, errors.Wrapf(err, "decoding sample timestamp %s", raw)
		}
		return int64(f), nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, errors.Wrapf(err, "decoding sample timestamp %s", raw)
	}

	if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
		return t.UnixMilli(), nil
	}

	ms, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognised sample timestamp %q", str)
	}
	return ms, nil
}

// MetricSeries maps a metric name to its samples.
type MetricSeries map[string][]Sample

// Names returns the metric names present in the series.
func (m MetricSeries) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

// SeriesFromResults keys each result by its metric name. When the same
// metric name occurs more than once the last occurrence wins.
func SeriesFromResults(results []AggregateResult) MetricSeries {
	series := make(MetricSeries, len(results))
	for _, result := range results {
		samples := result.Series
		if samples == nil {
			samples = []Sample{}
		}
		series[result.Metric] = samples
	}
	return series
}

// NewAggregateRequest builds the request envelope for one monitored object.
// When scoped, the request carries a globalMetricFilterContext for objectID.
func NewAggregateRequest(objectID string, config QueryConfig, interval string, scoped bool) *AggregateRequest {
	attributes := AggregateAttributes{
		Aggregation:  config.Aggregation,
		Granularity:  config.Granularity,
		Interval:     interval,
		Metrics:      config.Metrics,
		QueryContext: config.QueryContext,
	}

	if scoped && objectID != "" {
		attributes.GlobalMetricFilterContext = &MetricFilterContext{
			MonitoredObjectID: []string{objectID},
		}
	}

	return &AggregateRequest{
		Data: AggregateRequestData{
			Type:       "aggregates",
			Attributes: attributes,
		},
	}
}

// FetchMetrics requests the aggregates described by config for one monitored
// object over interval. It returns the raw result entries and the series
// keyed by metric name. Every failure wraps ErrFetch.
func (client *Client) FetchMetrics(ctx context.Context, objectID string, config QueryConfig, interval string) ([]AggregateResult, MetricSeries, error) {
	url := fmt.Sprintf("%v%v", client.baseURL, aggregateEndpoint)
	request := NewAggregateRequest(objectID, config, interval, client.scopeToObject)

	var response AggregateResponse
	if err := client.makeJSONRequest(ctx, url, "POST", request, &response); err != nil {
		return nil, nil, errors.Wrapf(ErrFetch, "%v %v for %v: %v", config.Aggregation, aggregateEndpoint, objectID, err)
	}

	results := response.Data.Attributes.Result
	if results == nil {
		results = []AggregateResult{}
	}

	return results, SeriesFromResults(results), nil
}
