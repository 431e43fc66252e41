package index

import "strings"

// Milestone progress values. The subprocess prints human-readable log
// lines, not a machine-readable progress stream, so stage detection is a
// substring heuristic over lowercased output. Values stay below 100;
// completion is only ever set by a clean exit.
const (
	progressFirstOutput = 10
	progressComplete    = 100
	progressCeiling     = 99
)

// stages in pipeline order; the first match wins, mirroring the order the
// indexer works through its workflows.
var stages = []struct {
	keywords []string
	progress int
}{
	{[]string{"chunk", "split"}, 20},
	{[]string{"entity", "extract"}, 40},
	{[]string{"relationship", "graph"}, 60},
	{[]string{"community", "cluster"}, 80},
	{[]string{"embed", "vector"}, 90},
}

// progressForLine maps one output line to a milestone, or 0 when the line
// carries no recognizable stage token.
func progressForLine(line string) int {
	lower := strings.ToLower(line)
	for _, stage := range stages {
		for _, kw := range stage.keywords {
			if strings.Contains(lower, kw) {
				return stage.progress
			}
		}
	}
	return 0
}

// containsError reports whether a line looks like an error report.
func containsError(line string) bool {
	return strings.Contains(strings.ToLower(line), "error")
}
