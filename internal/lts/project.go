// Package lts projects parsed results into the long-term-storage payload
// and ships payloads to the archive and time-series exporters.
package lts

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/matbench/internal/models"
	"github.com/signalnine/matbench/internal/result"
)

// PresetNamesPath is where the applied presets are read from the test config.
const PresetNamesPath = "ci_presets.names"

// UnknownExitCode is recorded when the run left no exit_code file.
const UnknownExitCode = -1

var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/signalnine/matbench/lts"))

// GenerateResults derives the KPI record of r. Failed requests count toward
// Requests and Failures but not toward the latency percentiles.
func GenerateResults(r *result.Results) *models.Results {
	out := &models.Results{}

	if se := r.Once.TestStartEnd; se != nil {
		out.DurationSeconds = se.Duration().Seconds()
	}

	var ttft, itl, tpot []float64
	tokens := 0
	if b := r.Once.Benchmark; b != nil {
		out.Requests = len(b.Requests)
		for _, req := range b.Requests {
			if req.Failed() {
				out.Failures++
				continue
			}
			ttft = append(ttft, req.TTFT)
			itl = append(itl, req.ITL)
			tpot = append(tpot, req.TPOT)
			tokens += req.OutputTokens
		}
	}
	out.TTFT = percentiles(ttft)
	out.ITL = percentiles(itl)
	out.TPOT = percentiles(tpot)
	if out.DurationSeconds > 0 {
		out.Throughput = float64(tokens) / out.DurationSeconds
	}

	if ci := r.Once.ClusterInfo; ci != nil {
		out.Cluster = &models.Cluster{
			ControlPlaneNodes: ci.ControlPlane,
			InfraNodes:        ci.Infra,
			WorkerNodes:       ci.Workers,
			TestPodsOnlyNodes: ci.TestPodsOnly,
		}
	}
	return out
}

func percentiles(values []float64) models.Percentiles {
	if len(values) == 0 {
		return models.Percentiles{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return models.Percentiles{
		Min:    sorted[0],
		Median: quantile(sorted, 0.5),
		P90:    quantile(sorted, 0.9),
		P99:    quantile(sorted, 0.99),
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
	}
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// RunID derives a stable identifier from the start time and settings of a
// run, so re-parsing the same run yields the same id.
func RunID(start time.Time, settings result.ImportSettings) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(start.UTC().Format(time.RFC3339Nano))
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s=%s", k, settings[k])
	}
	return uuid.NewSHA1(runNamespace, []byte(b.String())).String()
}

// GeneratePayload wraps ltsResults with the run metadata. With mustValidate
// the payload is checked against the schema and a *SchemaValidationError
// is returned on the first violation.
func GeneratePayload(r *result.Results, ltsResults *models.Results, settings result.ImportSettings, mustValidate bool) (*models.Payload, error) {
	if ltsResults == nil {
		return nil, errors.New("generating LTS payload: no results")
	}

	md := models.Metadata{
		SchemaName:    models.SchemaName,
		SchemaVersion: models.SchemaVersion,
		Settings:      make(map[string]string, len(settings)),
		ExitCode:      UnknownExitCode,
		OCPVersion:    r.Once.OCPVersion,
		Presets:       presets(r.Always.TestConfig),
	}
	for k, v := range settings {
		md.Settings[k] = v
	}
	if se := r.Once.TestStartEnd; se != nil {
		md.Start = se.Start.UTC()
		md.End = se.End.UTC()
	}
	md.RunID = RunID(md.Start, settings)
	if r.Always.ExitCode != nil {
		md.ExitCode = *r.Always.ExitCode
	}

	payload := &models.Payload{Metadata: md, Results: *ltsResults}
	if mustValidate {
		if err := Validate(payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func presets(tc *result.TestConfig) []string {
	if tc == nil || tc.Get == nil {
		return nil
	}
	v, err := tc.Get(PresetNamesPath)
	if err != nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

// Project runs GenerateResults and GeneratePayload over r.
func Project(r *result.Results, settings result.ImportSettings, mustValidate bool) (*models.Payload, error) {
	return GeneratePayload(r, GenerateResults(r), settings, mustValidate)
}

// BuildPayloads projects a batch of parsed runs with the default schema.
func BuildPayloads(entries []*result.Results, validate bool) ([]*models.Payload, error) {
	return Schema{Name: models.SchemaName, Version: models.SchemaVersion, Project: Project}.BuildPayloads(entries, validate)
}

// BuildPayloads projects a batch of parsed runs for export, each with its
// own import settings. Runs that fail to project are reported in the joined
// error; the others are still returned.
func (s Schema) BuildPayloads(entries []*result.Results, validate bool) ([]*models.Payload, error) {
	var (
		payloads []*models.Payload
		errs     []error
	)
	for _, r := range entries {
		p, err := s.Project(r, r.Always.ImportSettings, validate)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Always.Location, err))
			continue
		}
		payloads = append(payloads, p)
	}
	return payloads, errors.Join(errs...)
}
