package fio

import (
	"errors"
	"reflect"
	"testing"
)

const sampleJobFile = `[global]
ioengine=libaio
direct=1
runtime=30
bs=4k

[job1]
rw=read
ramp_time=5

[job2]
rw=randwrite
runtime=10
ramp_time=not-a-number
`

func mustParse(t *testing.T, doc string) *Config {
	t.Helper()
	config, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return config
}

func TestJobsExcludesGlobal(t *testing.T) {
	config := mustParse(t, sampleJobFile)

	got := config.Jobs()
	want := []string{"job1", "job2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Jobs() = %v, want %v", got, want)
	}
}

func TestValueResolution(t *testing.T) {
	config := mustParse(t, sampleJobFile)

	tests := []struct {
		name    string
		section string
		key     string
		want    string
		wantOK  bool
	}{
		{"section overrides global", "job2", "runtime", "10", true},
		{"global fallback", "job1", "runtime", "30", true},
		{"section-local only", "job1", "ramp_time", "5", true},
		{"value-less key resolves from global", "job1", "direct", "1", true},
		{"missing everywhere", "job1", "iodepth", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := config.Value(tt.section, tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Value(%q, %q) = (%q, %v), want (%q, %v)",
					tt.section, tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValuelessKey(t *testing.T) {
	config := mustParse(t, "[global]\n[trim]\nexitall\n")

	got, ok := config.Value("trim", "exitall")
	if !ok || got != "true" {
		t.Errorf("Value(trim, exitall) = (%q, %v), want (\"true\", true)", got, ok)
	}
}

func TestEstimatedRuntime(t *testing.T) {
	config := mustParse(t, sampleJobFile)

	tests := []struct {
		section string
		want    int
	}{
		// ramp_time 5 + global runtime fallback 30
		{"job1", 35},
		// non-numeric ramp_time counts as 0, local runtime 10
		{"job2", 10},
		// unknown section still falls back to global runtime
		{"missing", 30},
	}
	for _, tt := range tests {
		if got := config.EstimatedRuntime(tt.section); got != tt.want {
			t.Errorf("EstimatedRuntime(%q) = %d, want %d", tt.section, got, tt.want)
		}
	}

	if got := config.TotalRuntime(); got != 45 {
		t.Errorf("TotalRuntime() = %d, want 45", got)
	}
}

func TestGlobalRuntimeFallback(t *testing.T) {
	config := mustParse(t, "[global]\nruntime=30\n\n[job1]\nrw=read\n")

	if got := config.EstimatedRuntime("job1"); got != 30 {
		t.Errorf("EstimatedRuntime(job1) = %d, want 30", got)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte("[unclosed\nkey=value\n"))
	if err == nil {
		t.Fatal("Parse() expected error for malformed document")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("Parse() error = %T, want *ParseError", err)
	}
}

func TestContentsVerbatim(t *testing.T) {
	config := mustParse(t, sampleJobFile)
	if config.Contents() != sampleJobFile {
		t.Error("Contents() must return the document exactly as written")
	}
}
