// Package models holds the long-term-storage (LTS) payload exported for
// every parsed run. Field tags drive both the JSON encoding and the schema
// validation performed before export.
package models

import "time"

const (
	SchemaName    = "kserve-llm"
	SchemaVersion = "1.0.0"
)

type Payload struct {
	Metadata Metadata `json:"metadata" validate:"required"`
	Results  Results  `json:"results" validate:"required"`
}

type Metadata struct {
	RunID         string            `json:"run_id" validate:"required,uuid"`
	SchemaName    string            `json:"$schema_name" validate:"required"`
	SchemaVersion string            `json:"$schema_version" validate:"required,semver"`
	Start         time.Time         `json:"start" validate:"required"`
	End           time.Time         `json:"end" validate:"required,gtfield=Start"`
	Settings      map[string]string `json:"settings" validate:"required"`
	ExitCode      int               `json:"exit_code"`
	OCPVersion    string            `json:"ocp_version,omitempty"`
	Presets       []string          `json:"presets,omitempty"`
}

// Results is the KPI record of one benchmark run.
type Results struct {
	Throughput      float64     `json:"throughput" validate:"gte=0"`
	TTFT            Percentiles `json:"time_to_first_token"`
	ITL             Percentiles `json:"inter_token_latency"`
	TPOT            Percentiles `json:"time_per_output_token"`
	Requests        int         `json:"requests" validate:"gt=0"`
	Failures        int         `json:"failures" validate:"gte=0,ltefield=Requests"`
	DurationSeconds float64     `json:"duration_s" validate:"gt=0"`
	Cluster         *Cluster    `json:"cluster,omitempty"`
}

// Percentiles are expressed in milliseconds.
type Percentiles struct {
	Min    float64 `json:"min" validate:"gte=0"`
	Median float64 `json:"median" validate:"gte=0"`
	P90    float64 `json:"p90" validate:"gte=0"`
	P99    float64 `json:"p99" validate:"gte=0"`
	Max    float64 `json:"max" validate:"gtefield=Min"`
	Mean   float64 `json:"mean" validate:"gte=0"`
}

// Cluster is only present when the node inventory was captured. Every
// count is then meaningful, zero included.
type Cluster struct {
	ControlPlaneNodes int `json:"control_plane_nodes" validate:"gte=0"`
	InfraNodes        int `json:"infra_nodes" validate:"gte=0"`
	WorkerNodes       int `json:"worker_nodes" validate:"gte=0"`
	TestPodsOnlyNodes int `json:"test_pods_only_nodes" validate:"gte=0"`
}
