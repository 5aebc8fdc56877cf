package monitor

import (
	"fmt"
	"strings"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
)

// historyHeader is written once when agent_history.csv is created
// (spec.md §6.2).
func historyHeader() string {
	return "timestamp,agent,status,activity"
}

// activityTruncateLimit bounds the activity field written per row so the
// CSV never carries an unbounded pane-derived string.
const activityTruncateLimit = 100

// AppendHistoryRow appends one (timestamp, agent, status, activity) row
// to path, writing the header first if the file is new (spec.md §4.J
// step 6, §6.2).
func AppendHistoryRow(fs core.FS, path string, isoTimestamp string, name string, status detect.ActivityStatus, activity string) error {
	activity = truncateForCSV(activity)
	line := fmt.Sprintf("%s,%s,%s,%s", isoTimestamp, csvEscape(name), string(status), csvEscape(activity))
	return fs.AppendLine(path, line, historyHeader)
}

func truncateForCSV(s string) string {
	if len(s) <= activityTruncateLimit {
		return s
	}
	return s[:activityTruncateLimit]
}

// csvEscape quotes a field if it contains a comma, quote, or newline,
// doubling embedded quotes per RFC 4180.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
