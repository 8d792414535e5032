// Package parsers turns the artifacts of a kserve-llm benchmark run
// directory into a result.Results.
package parsers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/matbench/internal/artifact"
	"github.com/signalnine/matbench/internal/config"
	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/result"
)

const (
	BenchmarkDir      = "BENCHMARK_DIR"
	ClusterCaptureDir = "CLUSTER_CAPTURE_DIR"
)

const (
	startEndFile   = "test_start_end.yaml"
	benchOutputDir = "output"
	nodesFile      = "nodes.json"
	versionFile    = "ocp_version.yml"
)

// Node labels used to classify the cluster inventory.
const (
	LabelMaster       = "node-role.kubernetes.io/master"
	LabelControlPlane = "node-role.kubernetes.io/control-plane"
	LabelInfra        = "node-role.kubernetes.io/infra"
	LabelWorker       = "node-role.kubernetes.io/worker"
	LabelTestPodsOnly = "only-test-pods"
)

var artifactDirnames = map[string]string{
	BenchmarkDir:      "*__benchmark",
	ClusterCaptureDir: "*__cluster__capture_environment",
}

// ImportantFiles lists every file the parser reads, relative to the run
// directory.
var ImportantFiles = []string{
	"config.yaml",
	"exit_code",
	"*__benchmark/" + startEndFile,
	"*__benchmark/" + benchOutputDir + "/*.json",
	"*__cluster__capture_environment/" + nodesFile,
	"*__cluster__capture_environment/" + versionFile,
}

// KServeLLM parses the run directories of the kserve-llm benchmark.
type KServeLLM struct {
	Registry *artifact.Registry
	Logger   *slog.Logger
}

func New(logger *slog.Logger) *KServeLLM {
	return &KServeLLM{
		Registry: &artifact.Registry{Important: ImportantFiles, Logger: logger},
		Logger:   logger,
	}
}

func (p *KServeLLM) logger() *slog.Logger {
	return logging.OrDefault(p.Logger)
}

func (p *KServeLLM) ArtifactDirnames() map[string]string {
	out := make(map[string]string, len(artifactDirnames))
	for k, v := range artifactDirnames {
		out[k] = v
	}
	return out
}

func (p *KServeLLM) register(dirname, filename string) string {
	if p.Registry == nil {
		return filepath.Join(dirname, filename)
	}
	return p.Registry.Register(dirname, filename)
}

// ParseAlways fills the fields that depend on the current invocation. It
// only reads small files and never writes.
func (p *KServeLLM) ParseAlways(_ context.Context, r *result.Results, dirname string, _ artifact.Paths, settings result.ImportSettings) error {
	r.Always.Location = dirname
	r.Always.ImportSettings = make(result.ImportSettings, len(settings))
	for k, v := range settings {
		r.Always.ImportSettings[k] = v
	}

	tc, err := p.parseTestConfig(dirname)
	if err != nil {
		return err
	}
	r.Always.TestConfig = tc
	r.Always.ExitCode = p.parseExitCode(dirname)
	return nil
}

func (p *KServeLLM) parseTestConfig(dirname string) (*result.TestConfig, error) {
	path := p.register(dirname, "config.yaml")
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger().Warn("run directory has no config.yaml", "dir", dirname)
		raw = nil
	} else if err != nil {
		return nil, fmt.Errorf("reading test config: %w", err)
	}
	tc := &result.TestConfig{Path: path, Raw: raw}
	if err := BindTestConfig(tc); err != nil {
		return nil, err
	}
	return tc, nil
}

// BindTestConfig sets tc.Get to answer path queries over tc.Raw.
func BindTestConfig(tc *result.TestConfig) error {
	doc, err := config.ParseDocument(tc.Raw)
	if err != nil {
		return fmt.Errorf("parsing test config %s: %w", tc.Path, err)
	}
	file := tc.Path
	tc.Get = func(path string) (any, error) {
		v, ok, err := doc.Get(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &config.KeyNotFoundError{Path: path, File: file}
		}
		return v, nil
	}
	return nil
}

func (p *KServeLLM) parseExitCode(dirname string) *int {
	data, err := os.ReadFile(p.register(dirname, "exit_code"))
	if err != nil {
		p.logger().Info("no exit code", "dir", dirname)
		return nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		p.logger().Warn("invalid exit code", "dir", dirname, "content", strings.TrimSpace(string(data)))
		return nil
	}
	return &code
}

// ParseOnce parses the benchmark artifacts. Missing optional artifacts are
// logged; missing timestamps are an error.
func (p *KServeLLM) ParseOnce(_ context.Context, r *result.Results, dirname string, paths artifact.Paths) error {
	benchDir, err := paths.Get(BenchmarkDir)
	if err != nil {
		return fmt.Errorf("locating benchmark: %w", err)
	}

	se, err := p.parseStartEnd(dirname, benchDir)
	if err != nil {
		return err
	}
	r.Once.TestStartEnd = se

	bench, err := p.parseBenchmark(dirname, benchDir)
	if err != nil {
		return err
	}
	r.Once.Benchmark = bench

	if !paths.Resolved(ClusterCaptureDir) {
		p.logger().Info("no cluster capture, cluster info not measured", "dir", dirname)
		return nil
	}
	captureDir, err := paths.Get(ClusterCaptureDir)
	if err != nil {
		return fmt.Errorf("locating cluster capture: %w", err)
	}
	if r.Once.ClusterInfo, err = p.parseClusterInfo(dirname, captureDir); err != nil {
		return err
	}
	r.Once.OCPVersion = p.parseOCPVersion(dirname, captureDir)
	return nil
}

type startEndYAML struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

func (p *KServeLLM) parseStartEnd(dirname, benchDir string) (*result.StartEnd, error) {
	data, err := os.ReadFile(p.register(dirname, filepath.Join(benchDir, startEndFile)))
	if err != nil {
		return nil, fmt.Errorf("reading test start/end: %w", err)
	}
	var se startEndYAML
	if err := yaml.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("parsing test start/end: %w", err)
	}
	if se.Start.IsZero() || se.End.IsZero() {
		return nil, fmt.Errorf("parsing test start/end: start and end are required")
	}
	return &result.StartEnd{Start: se.Start.UTC(), End: se.End.UTC()}, nil
}

type benchmarkOutput struct {
	Results []struct {
		TTFT         float64 `json:"ttft"`
		TPOT         float64 `json:"tpot"`
		ITL          float64 `json:"itl"`
		ResponseTime float64 `json:"response_time"`
		OutputTokens int     `json:"output_tokens"`
		ErrorCode    int     `json:"error_code"`
	} `json:"results"`
}

func (p *KServeLLM) parseBenchmark(dirname, benchDir string) (*result.Benchmark, error) {
	pattern := filepath.Join(dirname, benchDir, benchOutputDir, "*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing benchmark output: %w", err)
	}
	if len(files) == 0 {
		p.logger().Warn("no benchmark output", "pattern", pattern)
		return nil, nil
	}
	sort.Strings(files)

	bench := &result.Benchmark{}
	for _, f := range files {
		rel, err := filepath.Rel(dirname, f)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p.register(dirname, rel))
		if err != nil {
			return nil, fmt.Errorf("reading benchmark output: %w", err)
		}
		var out benchmarkOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", rel, err)
		}
		for _, res := range out.Results {
			bench.Requests = append(bench.Requests, result.Request{
				TTFT:         res.TTFT,
				TPOT:         res.TPOT,
				ITL:          res.ITL,
				ResponseTime: res.ResponseTime,
				OutputTokens: res.OutputTokens,
				ErrorCode:    res.ErrorCode,
			})
		}
	}
	return bench, nil
}

type nodeList struct {
	Items []struct {
		Metadata struct {
			Name   string            `json:"name"`
			Labels map[string]string `json:"labels"`
		} `json:"metadata"`
	} `json:"items"`
}

// parseClusterInfo returns nil when the node inventory was not captured.
func (p *KServeLLM) parseClusterInfo(dirname, captureDir string) (*result.ClusterInfo, error) {
	data, err := os.ReadFile(p.register(dirname, filepath.Join(captureDir, nodesFile)))
	if errors.Is(err, fs.ErrNotExist) {
		p.logger().Info("no node inventory, cluster info not measured", "dir", dirname)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading nodes: %w", err)
	}
	var nodes nodeList
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parsing nodes: %w", err)
	}

	info := &result.ClusterInfo{}
	for _, n := range nodes.Items {
		labels := n.Metadata.Labels
		info.Nodes = append(info.Nodes, n.Metadata.Name)
		_, master := labels[LabelMaster]
		_, controlPlane := labels[LabelControlPlane]
		switch {
		case master || controlPlane:
			info.ControlPlane++
		case hasLabel(labels, LabelInfra):
			info.Infra++
		case hasLabel(labels, LabelWorker):
			info.Workers++
		}
		if hasLabel(labels, LabelTestPodsOnly) {
			info.TestPodsOnly++
		}
	}
	sort.Strings(info.Nodes)
	return info, nil
}

func hasLabel(labels map[string]string, key string) bool {
	_, ok := labels[key]
	return ok
}

func (p *KServeLLM) parseOCPVersion(dirname, captureDir string) string {
	data, err := os.ReadFile(p.register(dirname, filepath.Join(captureDir, versionFile)))
	if err != nil {
		p.logger().Info("no OpenShift version", "dir", dirname)
		return ""
	}
	var v struct {
		OpenShiftVersion string `yaml:"openshiftVersion"`
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		p.logger().Warn("invalid OpenShift version file", "dir", dirname, "error", err)
		return ""
	}
	return v.OpenShiftVersion
}
