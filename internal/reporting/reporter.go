// -- internal/reporting/reporter.go --

// Package reporting writes the console's triage state to an output for
// sharing outside the session.
package reporting

import (
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"

	"github.com/nullvane/argus-cli/api/schemas"
)

// Reporter defines the interface for writing a triage report to an output.
type Reporter interface {
	// Write serializes a single triage report.
	Write(report *schemas.TriageReport) error
	// Close finalizes the report and closes any underlying resources.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format writing to outputPath. An
// empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json", "":
		// NewJSONReporter takes ownership of the writer.
		return NewJSONReporter(writer), nil
	default:
		if !isStdOut {
			writer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// JSONReporter writes the report as indented JSON.
type JSONReporter struct {
	writer io.WriteCloser
}

// NewJSONReporter builds a JSON reporter over the given writer. The
// reporter owns the writer and closes it in Close.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

// Write serializes the report. Later writes overwrite nothing; each call
// appends a complete document, so callers normally write exactly once.
func (r *JSONReporter) Write(report *schemas.TriageReport) error {
	if report == nil {
		return fmt.Errorf("nil triage report")
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding triage report: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *JSONReporter) Close() error {
	return r.writer.Close()
}

var _ Reporter = (*JSONReporter)(nil)
