// Package report summarizes parsed benchmark runs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/matbench/internal/lts"
	"github.com/signalnine/matbench/internal/models"
	"github.com/signalnine/matbench/internal/result"
)

// Unset labels runs lacking the grouping setting.
const Unset = "(unset)"

type GroupSummary struct {
	Group          string  `json:"group"`
	Runs           int     `json:"runs"`
	PassRate       float64 `json:"pass_rate"`
	Requests       int     `json:"requests"`
	Failures       int     `json:"failures"`
	MeanThroughput float64 `json:"mean_throughput"`
	MeanTTFTP90    float64 `json:"mean_ttft_p90_ms"`
	MeanITLMedian  float64 `json:"mean_itl_median_ms"`
}

// Generate writes the summary of entries in format: table, markdown, or
// json. Runs are grouped by the value of the groupBy setting, or by their
// full settings when groupBy is empty.
func Generate(entries []*result.Results, format, groupBy string, w io.Writer) error {
	summaries := Summarize(entries, groupBy)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

// GroupKey returns the group r belongs to.
func GroupKey(r *result.Results, groupBy string) string {
	settings := r.Always.ImportSettings
	if groupBy != "" {
		if v, ok := settings[groupBy]; ok {
			return v
		}
		return Unset
	}
	if len(settings) == 0 {
		return r.Always.Location
	}
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + settings[k]
	}
	return strings.Join(parts, ",")
}

// kpis prefers the payload projected at parse time.
func kpis(r *result.Results) models.Results {
	if r.LTS != nil {
		return r.LTS.Results
	}
	return *lts.GenerateResults(r)
}

func Summarize(entries []*result.Results, groupBy string) []GroupSummary {
	type accum struct {
		count      int
		passed     int
		requests   int
		failures   int
		throughput float64
		ttft       float64
		itl        float64
	}
	byGroup := map[string]*accum{}

	for _, r := range entries {
		key := GroupKey(r, groupBy)
		a, ok := byGroup[key]
		if !ok {
			a = &accum{}
			byGroup[key] = a
		}
		k := kpis(r)
		a.count++
		a.requests += k.Requests
		a.failures += k.Failures
		a.throughput += k.Throughput
		a.ttft += k.TTFT.P90
		a.itl += k.ITL.Median
		if code := r.Always.ExitCode; code != nil && *code == 0 {
			a.passed++
		}
	}

	var summaries []GroupSummary
	for name, a := range byGroup {
		n := float64(a.count)
		summaries = append(summaries, GroupSummary{
			Group:          name,
			Runs:           a.count,
			PassRate:       float64(a.passed) / n,
			Requests:       a.requests,
			Failures:       a.failures,
			MeanThroughput: a.throughput / n,
			MeanTTFTP90:    a.ttft / n,
			MeanITLMedian:  a.itl / n,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Group < summaries[j].Group
	})
	return summaries
}

func writeTable(summaries []GroupSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tRUNS\tPASS RATE\tREQUESTS\tFAILURES\tTHROUGHPUT\tTTFT P90\tITL MEDIAN")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%d\t%d\t%.1f tok/s\t%.1f ms\t%.1f ms\n",
			s.Group, s.Runs, s.PassRate*100, s.Requests, s.Failures, s.MeanThroughput, s.MeanTTFTP90, s.MeanITLMedian)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []GroupSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Group | Runs | Pass Rate | Requests | Failures | Throughput | TTFT p90 | ITL median |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %d | %d | %.1f tok/s | %.1f ms | %.1f ms |\n",
			s.Group, s.Runs, s.PassRate*100, s.Requests, s.Failures, s.MeanThroughput, s.MeanTTFTP90, s.MeanITLMedian)
	}
	return nil
}

func writeJSON(summaries []GroupSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
