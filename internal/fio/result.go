package fio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// NoResult is rendered wherever a source value is missing or non-numeric.
const NoResult = "---"

// Result wraps the native JSON document fio emits for one run. It is
// immutable once constructed; tables, JSON and exports are pure projections
// of the unchanged document.
type Result struct {
	doc  map[string]any
	jobs []map[string]any
}

// ParseResult decodes fio's --output-format=json document. A document
// without a jobs array yields a result with zero jobs, not an error.
func ParseResult(raw []byte) (*Result, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode fio output: %w", err)
	}
	r := &Result{doc: doc}
	if arr, ok := doc["jobs"].([]any); ok {
		for _, entry := range arr {
			if job, ok := entry.(map[string]any); ok {
				r.jobs = append(r.jobs, job)
			}
		}
	}
	return r, nil
}

// Jobs returns the per-job records in document order.
func (r *Result) Jobs() []map[string]any { return r.jobs }

// JobNames returns the jobname of every record in document order.
func (r *Result) JobNames() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		name, _ := job["jobname"].(string)
		names = append(names, name)
	}
	return names
}

// Job returns the record for the named job.
func (r *Result) Job(name string) (map[string]any, error) {
	for _, job := range r.jobs {
		if n, _ := job["jobname"].(string); n == name {
			return job, nil
		}
	}
	return nil, fmt.Errorf("job %q not found in result", name)
}

// metricOrder fixes the row order of every rendered view. Adding a metric
// means adding it here and in Metrics.
var metricOrder = []string{
	"Total Read IO",
	"Total Write IO",
	"Read Bandwidth",
	"Write Bandwidth",
	"Read IOPS",
	"Write IOPS",
	"Read Submission Latency",
	"Read Completion Latency",
	"Read Total Latency",
	"Write Submission Latency",
	"Write Completion Latency",
	"Write Total Latency",
	"Job Runtime",
	"User CPU",
	"System CPU",
	"Context Switches",
	"Read Latency (99.0 Percentile)",
	"Read Latency (99.9 Percentile)",
	"Write Latency (99.0 Percentile)",
	"Write Latency (99.9 Percentile)",
}

// Metrics projects one job record into human-readable display strings.
// Missing or non-numeric source values render as NoResult and never panic.
func Metrics(job map[string]any) map[string]string {
	return map[string]string{
		"Total Read IO":                  humanBytes(get(job, "read", "io_bytes")),
		"Total Write IO":                 humanBytes(get(job, "write", "io_bytes")),
		"Read Bandwidth":                 rate(get(job, "read", "bw_bytes")),
		"Write Bandwidth":                rate(get(job, "write", "bw_bytes")),
		"Read IOPS":                      iops(get(job, "read", "iops")),
		"Write IOPS":                     iops(get(job, "write", "iops")),
		"Read Submission Latency":        nanos(get(job, "read", "slat_ns", "mean")),
		"Read Completion Latency":        nanos(get(job, "read", "clat_ns", "mean")),
		"Read Total Latency":             nanos(get(job, "read", "lat_ns", "mean")),
		"Write Submission Latency":       nanos(get(job, "write", "slat_ns", "mean")),
		"Write Completion Latency":       nanos(get(job, "write", "clat_ns", "mean")),
		"Write Total Latency":            nanos(get(job, "write", "lat_ns", "mean")),
		"Job Runtime":                    millis(get(job, "job_runtime")),
		"User CPU":                       percent(get(job, "usr_cpu")),
		"System CPU":                     percent(get(job, "sys_cpu")),
		"Context Switches":               count(get(job, "ctx")),
		"Read Latency (99.0 Percentile)": nanos(get(job, "read", "clat_ns", "percentile", "99.000000")),
		"Read Latency (99.9 Percentile)": nanos(get(job, "read", "clat_ns", "percentile", "99.900000")),
		"Write Latency (99.0 Percentile)": nanos(get(job, "write", "clat_ns", "percentile", "99.000000")),
		"Write Latency (99.9 Percentile)": nanos(get(job, "write", "clat_ns", "percentile", "99.900000")),
	}
}

// WriteTable renders one column per job with the fixed metric rows.
func (r *Result) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)

	header := make([]any, 0, len(r.jobs)+1)
	header = append(header, "Metric")
	for _, name := range r.JobNames() {
		header = append(header, name)
	}
	table.Header(header...)

	metricsByJob := make([]map[string]string, len(r.jobs))
	for i, job := range r.jobs {
		metricsByJob[i] = Metrics(job)
	}
	for _, metric := range metricOrder {
		row := make([]any, 0, len(metricsByJob)+1)
		row = append(row, metric)
		for _, m := range metricsByJob {
			row = append(row, m[metric])
		}
		table.Append(row...)
	}
	table.Render()
}

// JSON returns the native result document re-encoded, unchanged in shape.
func (r *Result) JSON() ([]byte, error) {
	data, err := json.Marshal(r.doc)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

// ExportJSON writes the native result document to path.
func (r *Result) ExportJSON(path string) error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export result: %w", err)
	}
	return nil
}

// get walks nested maps and returns nil as soon as a key is absent.
func get(doc map[string]any, keys ...string) any {
	var cur any = doc
	for _, key := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func humanBytes(v any) string {
	n, ok := number(v)
	if !ok {
		return NoResult
	}
	return humanize.IBytes(uint64(n))
}

func rate(v any) string {
	if s := humanBytes(v); s != NoResult {
		return s + "/s"
	}
	return NoResult
}

func iops(v any) string {
	n, ok := number(v)
	if !ok {
		return NoResult
	}
	return humanize.CommafWithDigits(n, 2) + " IOPS"
}

func nanos(v any) string {
	n, ok := number(v)
	if !ok {
		return NoResult
	}
	return time.Duration(n).Round(time.Microsecond).String()
}

func millis(v any) string {
	n, ok := number(v)
	if !ok {
		return NoResult
	}
	return (time.Duration(n) * time.Millisecond).String()
}

func percent(v any) string {
	n, ok := number(v)
	if !ok {
		return NoResult
	}
	return fmt.Sprintf("%.2f%%", n)
}

func count(v any) string {
	n, ok := number(v)
	if !ok {
		return NoResult
	}
	return humanize.Comma(int64(n))
}
