package extractor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/128technology/pca-importer/influx"
)

// Writer renders the Result of a successfully queried object.
type Writer interface {
	Write(result Result) error
}

// JSONWriter prints the raw result array of each object as indented JSON.
type JSONWriter struct {
	out io.Writer
}

// NewJSONWriter creates a JSONWriter printing to out.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

func (w *JSONWriter) Write(result Result) error {
	object := result.Object
	if len(result.Results) == 0 {
		_, err := fmt.Fprintf(w.out, "No data returned for %v ID %v\n\n", object.ObjectType, object.ID)
		return err
	}

	body, err := json.MarshalIndent(result.Results, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w.out, "Results for %v [%v]:\n%s\n\n", object.ObjectType, object.ID, body)
	return err
}

// LineProtocolWriter prints every sample as an InfluxDB line protocol point.
type LineProtocolWriter struct {
	encoder *influx.Encoder
}

// NewLineProtocolWriter creates a LineProtocolWriter printing to out.
func NewLineProtocolWriter(out io.Writer) *LineProtocolWriter {
	return &LineProtocolWriter{encoder: influx.NewEncoder(out)}
}

func (w *LineProtocolWriter) Write(result Result) error {
	return w.encoder.Encode(result.Object, result.Config.Aggregation, result.Series)
}

// WriteTo returns a Handler passing every successful result to w. The first
// write error is kept in *firstErr when firstErr is not nil.
func WriteTo(w Writer, firstErr *error) Handler {
	return func(result Result) error {
		if result.Err != nil {
			return nil
		}

		err := w.Write(result)
		if err != nil && firstErr != nil && *firstErr == nil {
			*firstErr = err
		}
		return err
	}
}
