package client

import (
	"sort"

	"github.com/pkg/errors"
)

// Aggregation is the reducing function applied to each granularity bucket.
type Aggregation string

// Supported aggregations.
const (
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationSum   Aggregation = "sum"
	AggregationCount Aggregation = "count"
	AggregationP95   Aggregation = "p95"
)

// Valid reports whether the aggregation is one the aggregate API accepts.
func (a Aggregation) Valid() bool {
	switch a {
	case AggregationAvg, AggregationMin, AggregationMax, AggregationSum, AggregationCount, AggregationP95:
		return true
	}
	return false
}

// Object types with built-in query configurations.
const (
	ObjectTypeTWAMPSession     = "twamp-sf"
	ObjectTypeCiscoXEInterface = "cisco-telemetry-xe-interface"
)

const defaultAggregation = AggregationAvg

// MonitoredObject identifies a network session or interface to query.
type MonitoredObject struct {
	ID         string `yaml:"id" validate:"required"`
	ObjectType string `yaml:"objectType" validate:"required"`
}

// MetricDefinition names a metric, the directions to query and the object
// types it applies to.
type MetricDefinition struct {
	Metric     string   `json:"metric"`
	Direction  []string `json:"direction"`
	ObjectType []string `json:"objectType"`
}

// QueryContext carries the query context flags of an aggregate request.
type QueryContext struct {
	IgnoreCleaning    bool `json:"ignoreCleaning"`
	FocusBusyHour     bool `json:"focusBusyHour"`
	IgnoreMaintenance bool `json:"ignoreMaintenance"`
}

// DefaultQueryContext is the query context used for every built-in object type.
var DefaultQueryContext = QueryContext{
	IgnoreCleaning:    true,
	FocusBusyHour:     false,
	IgnoreMaintenance: false,
}

// QueryConfig describes how to query one object type.
type QueryConfig struct {
	Metrics      []MetricDefinition
	Aggregation  Aggregation
	Granularity  string
	QueryContext QueryContext
}

// MetricNames returns the metric names in query order.
func (q QueryConfig) MetricNames() []string {
	names := make([]string, len(q.Metrics))
	for i, metric := range q.Metrics {
		names[i] = metric.Metric
	}
	return names
}

// MetricDescriptor documents a metric available for an object type.
type MetricDescriptor struct {
	ID          string
	ObjectType  string
	Direction   string
	Description string
}

// SessionMetrics contains the metrics queried for a TWAMP stateful session.
var SessionMetrics = []MetricDescriptor{
	{ID: "delayVarAvg", ObjectType: ObjectTypeTWAMPSession, Direction: "2", Description: "Average delay variation"},
	{ID: "jitterAvg", ObjectType: ObjectTypeTWAMPSession, Direction: "2", Description: "Average jitter"},
}

// InterfaceMetrics contains the metrics queried for a Cisco IOS XE telemetry interface.
var InterfaceMetrics = []MetricDescriptor{
	{ID: "inputDataRate", ObjectType: ObjectTypeCiscoXEInterface, Direction: "0", Description: "Input data rate"},
	{ID: "outputDataRate", ObjectType: ObjectTypeCiscoXEInterface, Direction: "0", Description: "Output data rate"},
	{ID: "txBps", ObjectType: ObjectTypeCiscoXEInterface, Direction: "0", Description: "Transmitted bits per second"},
	{ID: "rxBps", ObjectType: ObjectTypeCiscoXEInterface, Direction: "0", Description: "Received bits per second"},
}

// Metrics contains every built-in metric.
var Metrics = append(append([]MetricDescriptor{}, SessionMetrics...), InterfaceMetrics...)

func definitions(descriptors []MetricDescriptor) []MetricDefinition {
	defs := make([]MetricDefinition, len(descriptors))
	for i, d := range descriptors {
		defs[i] = MetricDefinition{
			Metric:     d.ID,
			Direction:  []string{d.Direction},
			ObjectType: []string{d.ObjectType},
		}
	}
	return defs
}

// Registry maps an object type to its query configuration. It is built
// once at startup and only read afterwards.
type Registry struct {
	configs map[string]QueryConfig
}

// NewRegistry creates a Registry from the given configurations.
func NewRegistry(configs map[string]QueryConfig) (*Registry, error) {
	registry := &Registry{configs: make(map[string]QueryConfig, len(configs))}
	for objectType, config := range configs {
		if !config.Aggregation.Valid() {
			return nil, errors.Errorf("object type %v: unsupported aggregation %q", objectType, config.Aggregation)
		}
		if len(config.Metrics) == 0 {
			return nil, errors.Errorf("object type %v: no metrics", objectType)
		}
		registry.configs[objectType] = config
	}
	return registry, nil
}

// DefaultRegistry returns the built-in registry using granularity for every
// object type. A non-empty aggregation overrides the default of avg.
func DefaultRegistry(granularity string, aggregation Aggregation) (*Registry, error) {
	if aggregation == "" {
		aggregation = defaultAggregation
	}

	return NewRegistry(map[string]QueryConfig{
		ObjectTypeTWAMPSession: {
			Metrics:      definitions(SessionMetrics),
			Aggregation:  aggregation,
			Granularity:  granularity,
			QueryContext: DefaultQueryContext,
		},
		ObjectTypeCiscoXEInterface: {
			Metrics:      definitions(InterfaceMetrics),
			Aggregation:  aggregation,
			Granularity:  granularity,
			QueryContext: DefaultQueryContext,
		},
	})
}

// Lookup returns the query configuration of objectType or ErrUnknownObjectType.
func (r *Registry) Lookup(objectType string) (QueryConfig, error) {
	config, ok := r.configs[objectType]
	if !ok {
		return QueryConfig{}, errors.Wrapf(ErrUnknownObjectType, "%q", objectType)
	}
	return config, nil
}

// ObjectTypes returns the registered object types in sorted order.
func (r *Registry) ObjectTypes() []string {
	types := make([]string, 0, len(r.configs))
	for objectType := range r.configs {
		types = append(types, objectType)
	}
	sort.Strings(types)
	return types
}
