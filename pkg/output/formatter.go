package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/ritzau/agentic-mesh/pkg/model"
)

// RunReport summarizes a headless simulation run
type RunReport struct {
	Policy      string
	Seed        int64
	Nodes       int
	Edges       int
	Diameter    int
	TTL         int
	Ticks       uint64
	Stats       model.Stats
	DropReasons map[string]uint64 // Keyed by DropCategory
}

// Drop categories, ordered roughly by how interesting they are
var categories = []struct {
	needle, name string
}{
	{"trust", "untrusted hop"},
	{"congested", "congestion"},
	{"shed under", "semantic triage"},
	{"ttl exceeded", "ttl exceeded"},
	{"cycle detected", "cycle"},
	{"no route", "no route"},
	{"already visited", "flood exhausted"},
	{"policy error", "policy error"},
}

// DropCategory collapses a drop reason to a stable bucket
func DropCategory(reason string) string {
	for _, c := range categories {
		if strings.Contains(reason, c.needle) {
			return c.name
		}
	}
	return "other"
}

// CountDrops adds the DROP entries in logs to counts by category
func CountDrops(counts map[string]uint64, logs []model.LogEntry) {
	for _, e := range logs {
		if e.Action == model.ActionDrop {
			counts[DropCategory(e.Reason)]++
		}
	}
}

// DeliveryRatio returns delivered / (delivered + dropped), or 0 with no outcomes
func DeliveryRatio(s model.Stats) float64 {
	total := s.Transmitted + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Transmitted) / float64(total)
}

// PrintRunReport prints a nicely formatted run summary with colors
func PrintRunReport(w io.Writer, r RunReport) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintln(w, "Agentic Mesh Router - Run Report")
	bold.Fprintln(w, "================================")
	fmt.Fprintf(w, "Policy: %s\n", r.Policy)
	fmt.Fprintf(w, "Seed: %d\n", r.Seed)
	fmt.Fprintf(w, "Mesh: %d nodes, %d links, diameter %d (ttl %d)\n", r.Nodes, r.Edges, r.Diameter, r.TTL)
	fmt.Fprintf(w, "Ticks: %d\n", r.Ticks)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Generated: %d\n", r.Stats.Generated)
	green.Fprintf(w, "Delivered: %d\n", r.Stats.Transmitted)
	if r.Stats.Dropped == 0 {
		green.Fprintf(w, "Dropped: 0\n")
	} else {
		yellow.Fprintf(w, "Dropped: %d\n", r.Stats.Dropped)
	}
	fmt.Fprintf(w, "In flight: %d\n", r.Stats.InFlight)
	if r.Stats.Collisions > 0 {
		yellow.Fprintf(w, "Collisions: %d\n", r.Stats.Collisions)
	}
	fmt.Fprintln(w)

	if len(r.DropReasons) > 0 {
		red.Fprintln(w, "DROP REASONS:")
		reasons := make([]string, 0, len(r.DropReasons))
		for k := range r.DropReasons {
			reasons = append(reasons, k)
		}
		sort.Slice(reasons, func(i, j int) bool {
			a, b := r.DropReasons[reasons[i]], r.DropReasons[reasons[j]]
			if a != b {
				return a > b
			}
			return reasons[i] < reasons[j]
		})
		for _, k := range reasons {
			cyan.Fprintf(w, "  %-16s", k)
			fmt.Fprintf(w, " %d\n", r.DropReasons[k])
		}
		fmt.Fprintln(w)
	}

	ratio := DeliveryRatio(r.Stats) * 100
	summaryColor := green
	if ratio < 80 {
		summaryColor = yellow
	}
	if ratio < 50 {
		summaryColor = red
	}
	summaryColor.Fprintf(w, "Summary: %.1f%% delivered (%d/%d resolved)\n",
		ratio, r.Stats.Transmitted, r.Stats.Transmitted+r.Stats.Dropped)
}
