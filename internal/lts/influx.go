package lts

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/signalnine/matbench/internal/models"
)

// Measurement is the InfluxDB measurement LTS points are written to.
const Measurement = "matbench_lts"

// InfluxExporter writes one point per payload, timestamped with the end of
// the run.
type InfluxExporter struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

func NewInfluxExporter(url, token, org, bucket string) *InfluxExporter {
	client := influxdb2.NewClient(url, token)
	return &InfluxExporter{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
	}
}

func (e *InfluxExporter) Export(ctx context.Context, payloads []*models.Payload) error {
	if len(payloads) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(payloads))
	for _, p := range payloads {
		points = append(points, Point(p))
	}
	if err := e.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("writing %d points to influxdb: %w", len(points), err)
	}
	return nil
}

func (e *InfluxExporter) Close() {
	e.client.Close()
}

// Point converts p into an InfluxDB point. Settings become tags, KPIs
// become fields.
func Point(p *models.Payload) *write.Point {
	tags := map[string]string{
		"run_id":         p.Metadata.RunID,
		"schema":         p.Metadata.SchemaName,
		"schema_version": p.Metadata.SchemaVersion,
	}
	for k, v := range p.Metadata.Settings {
		tags["setting_"+k] = v
	}
	if p.Metadata.OCPVersion != "" {
		tags["ocp_version"] = p.Metadata.OCPVersion
	}

	r := p.Results
	fields := map[string]interface{}{
		"throughput": r.Throughput,
		"requests":   r.Requests,
		"failures":   r.Failures,
		"duration_s": r.DurationSeconds,
		"exit_code":  p.Metadata.ExitCode,
	}
	for name, pc := range map[string]models.Percentiles{"ttft": r.TTFT, "itl": r.ITL, "tpot": r.TPOT} {
		fields[name+"_median"] = pc.Median
		fields[name+"_p90"] = pc.P90
		fields[name+"_p99"] = pc.P99
		fields[name+"_mean"] = pc.Mean
	}
	if c := r.Cluster; c != nil {
		fields["control_plane_nodes"] = c.ControlPlaneNodes
		fields["infra_nodes"] = c.InfraNodes
		fields["worker_nodes"] = c.WorkerNodes
		fields["test_pods_only_nodes"] = c.TestPodsOnlyNodes
	}
	return influxdb2.NewPoint(Measurement, tags, fields, p.Metadata.End)
}
