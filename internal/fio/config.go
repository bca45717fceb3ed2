package fio

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/ini.v1"
)

// GlobalSection is the reserved defaults section of a fio job file.
const GlobalSection = "global"

// ParseError reports a malformed job file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse job config: %v", e.Err)
	}
	return fmt.Sprintf("parse job config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Config is a parsed fio job file: a global defaults section plus named job
// sections. Keys are case-sensitive and may be value-less (fio option
// syntax). The raw contents are kept verbatim so the exact document the
// operator wrote is what the executor hands to fio.
type Config struct {
	path string
	raw  []byte
	file *ini.File
}

// Load reads and parses the job file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job config: %w", err)
	}
	return parse(raw, path)
}

// Parse parses an in-memory job document.
func Parse(raw []byte) (*Config, error) {
	return parse(raw, "")
}

func parse(raw []byte, path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		// fio options such as "direct" carry no value.
		AllowBooleanKeys: true,
	}, raw)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &Config{path: path, raw: raw, file: f}, nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string { return c.path }

// Contents returns the document exactly as it was read.
func (c *Config) Contents() string { return string(c.raw) }

// Jobs returns the job section names in declaration order, excluding the
// reserved global section.
func (c *Config) Jobs() []string {
	var jobs []string
	for _, name := range c.file.SectionStrings() {
		if name == ini.DefaultSection || name == GlobalSection {
			continue
		}
		jobs = append(jobs, name)
	}
	return jobs
}

// Value resolves key for the given job section, falling back to the global
// section when the section does not define it. ok reports whether either
// defines the key; a value-less key resolves to "true".
func (c *Config) Value(section, key string) (value string, ok bool) {
	for _, name := range []string{section, GlobalSection} {
		sec, err := c.file.GetSection(name)
		if err != nil {
			continue
		}
		if sec.HasKey(key) {
			return sec.Key(key).String(), true
		}
	}
	return "", false
}

// EstimatedRuntime returns ramp_time + runtime for one job section in
// seconds. Absent or non-numeric values count as zero.
func (c *Config) EstimatedRuntime(section string) int {
	return c.intValue(section, "ramp_time") + c.intValue(section, "runtime")
}

// TotalRuntime sums the estimated runtime of every job section.
func (c *Config) TotalRuntime() int {
	total := 0
	for _, job := range c.Jobs() {
		total += c.EstimatedRuntime(job)
	}
	return total
}

func (c *Config) intValue(section, key string) int {
	v, ok := c.Value(section, key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

// WriteRuntimeTable renders the per-job runtime estimates plus a TOTAL row.
func (c *Config) WriteRuntimeTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.Header("Job", "Duration in Seconds")
	for _, job := range c.Jobs() {
		table.Append(job, fmt.Sprintf("%ds", c.EstimatedRuntime(job)))
	}
	table.Append("TOTAL", fmt.Sprintf("%ds", c.TotalRuntime()))
	table.Render()
}
