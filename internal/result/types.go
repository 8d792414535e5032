package result

import (
	"time"

	"github.com/signalnine/matbench/internal/models"
)

// ImportSettings are the key/value pairs identifying a run inside a results
// tree (the merged settings files of the run directory).
type ImportSettings map[string]string

// Results is everything parsed out of one run directory. Always holds the
// fields recomputed on every parse, Once the fields computed only when no
// usable cache exists.
type Results struct {
	Always Always          `msgpack:"always"`
	Once   Once            `msgpack:"once"`
	LTS    *models.Payload `msgpack:"lts"`
}

type Always struct {
	Location       string         `msgpack:"location"`
	ImportSettings ImportSettings `msgpack:"import_settings"`
	TestConfig     *TestConfig    `msgpack:"test_config"`
	ExitCode       *int           `msgpack:"exit_code"`
}

// Getter answers path queries against the configuration a run used.
type Getter func(path string) (any, error)

// IsZero lets the cache codec omit a detached accessor.
func (g Getter) IsZero() bool { return g == nil }

type TestConfig struct {
	Path string `msgpack:"path"`
	Raw  []byte `msgpack:"raw"`
	// Get is a live accessor and cannot be encoded. It is nil on objects
	// freshly loaded from the cache until the always phase restores it.
	Get Getter `msgpack:"get,omitempty"`
}

type Once struct {
	TestStartEnd *StartEnd    `msgpack:"test_start_end"`
	Benchmark    *Benchmark   `msgpack:"benchmark"`
	ClusterInfo  *ClusterInfo `msgpack:"cluster_info"`
	OCPVersion   string       `msgpack:"ocp_version"`
}

type StartEnd struct {
	Start time.Time `msgpack:"start"`
	End   time.Time `msgpack:"end"`
}

func (se *StartEnd) Duration() time.Duration {
	return se.End.Sub(se.Start)
}

// Benchmark is the load generator output. Latencies are in milliseconds.
type Benchmark struct {
	Requests []Request `msgpack:"requests"`
}

type Request struct {
	TTFT         float64 `msgpack:"ttft"`
	TPOT         float64 `msgpack:"tpot"`
	ITL          float64 `msgpack:"itl"`
	ResponseTime float64 `msgpack:"response_time"`
	OutputTokens int     `msgpack:"output_tokens"`
	ErrorCode    int     `msgpack:"error_code"`
}

func (r Request) Failed() bool { return r.ErrorCode != 0 }

// ClusterInfo is nil when the node inventory was not captured. Once
// captured, each count is authoritative and zero means zero nodes.
type ClusterInfo struct {
	ControlPlane int      `msgpack:"control_plane"`
	Infra        int      `msgpack:"infra"`
	Workers      int      `msgpack:"workers"`
	TestPodsOnly int      `msgpack:"test_pods_only"`
	Nodes        []string `msgpack:"nodes"`
}
