package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const ruleWidth = 80

// renderReport formats the final text-only surgical report. Phases are
// stored in analysis order; the report presents them chronologically.
func renderReport(video *Video, phaseList []*Phase) string {
	sorted := make([]*Phase, len(phaseList))
	copy(sorted, phaseList)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartSeconds < sorted[j].StartSeconds
	})

	procedure := video.Procedure
	if procedure == "" {
		procedure = "Unknown Procedure"
	}

	var b strings.Builder
	heavy := strings.Repeat("=", ruleWidth)
	light := strings.Repeat("-", ruleWidth)

	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line(heavy)
	line("SURGICAL PROCEDURE DOCUMENTATION REPORT")
	line(heavy)
	line("")

	line("PROCEDURE INFORMATION")
	line(light)
	line("Procedure Type: " + procedure)
	line("Date of Documentation: " + video.CreatedAt.Format(time.RFC3339))
	line(fmt.Sprintf("Total Phases Documented: %d", len(sorted)))
	line("")

	last := sorted[len(sorted)-1]
	total := int(last.EndSeconds)
	line(fmt.Sprintf("Total Procedure Duration: %d:%02d", total/60, total%60))
	line("")
	line("")

	line("SURGICAL PHASES - CHRONOLOGICAL DOCUMENTATION")
	line(heavy)
	line("")

	for i, p := range sorted {
		line(fmt.Sprintf("PHASE %d", i+1))
		line(light)
		line("Time Range: " + p.TimestampRange)
		if p.Refined {
			line("Status: Clinician-Reviewed and Refined")
		}
		line("")
		line("Description:")
		desc := p.Description
		if desc == "" {
			desc = "No description available"
		}
		line(desc)
		line("")
	}

	line(heavy)
	line("END OF SURGICAL DOCUMENTATION REPORT")
	line(heavy)
	line("")
	line("Note: This report was generated using AI-assisted surgical video analysis.")
	b.WriteString("All phases have been reviewed and approved by clinical personnel.")

	return b.String()
}
