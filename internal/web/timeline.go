package web

import (
	"encoding/csv"
	"sort"
	"strings"
	"time"

	"github.com/mkb23/overcode/internal/core"
	"github.com/mkb23/overcode/internal/detect"
)

// emptySlotChar marks an empty slot in a timeline (spec.md §4.Q; statusChar
// below holds the per-status block characters), matching the original's
// build_timeline_string convention for an un-filled bucket.
const emptySlotChar = "─"

var statusChar = map[detect.ActivityStatus]string{
	detect.StatusRunning:          "█",
	detect.StatusRunningHeartbeat: "█",
	detect.StatusHeartbeatStart:   "█",
	detect.StatusWaiting:          "▓",
	detect.StatusWaitingUser:      "▓",
	detect.StatusWaitingHeartbeat: "▒",
	detect.StatusWaitingOversight: "▒",
	detect.StatusPermission:       "▒",
	detect.StatusError:            "▓",
	detect.StatusAsleep:           "░",
	detect.StatusTerminated:       "░",
}

func charFor(status detect.ActivityStatus) string {
	if c, ok := statusChar[status]; ok {
		return c
	}
	return "?"
}

// historyRow is one parsed agent_history.csv row (spec.md §6.2).
type historyRow struct {
	Timestamp time.Time
	Agent     string
	Status    detect.ActivityStatus
	Activity  string
}

// parseHistory reads and parses the append-only history CSV, tolerating
// a missing file (per spec.md §7's "parse errors: ignore and continue" —
// a monitor daemon that hasn't run yet produces no history at all).
func parseHistory(fs core.FS, path string) ([]historyRow, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil
	}

	var rows []historyRow
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "timestamp" {
			continue // header
		}
		if len(rec) < 4 {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			continue
		}
		rows = append(rows, historyRow{
			Timestamp: ts,
			Agent:     rec[1],
			Status:    detect.ActivityStatus(rec[2]),
			Activity:  rec[3],
		})
	}
	return rows, nil
}

// AgentTimeline is one agent's rendered timeline: a slot's status is the
// latest row whose bucket it falls in (spec.md §4.Q).
type AgentTimeline struct {
	Agent        string   `json:"agent"`
	StatusChars  []string `json:"status_chars"`
	StatusColors []string `json:"status_colors"`
}

// TimelineResponse is the /api/timeline body.
type TimelineResponse struct {
	Hours     float64         `json:"hours"`
	Slots     int             `json:"slots"`
	Timelines []AgentTimeline `json:"timelines"`
}

// BuildTimeline buckets history rows into slots per spec.md §4.Q:
// bucket = floor((ts - (now - hours)) / (hours*3600/slots)), keeping the
// latest row observed per bucket.
func BuildTimeline(rows []historyRow, hours float64, slots int, now time.Time) TimelineResponse {
	if slots <= 0 {
		slots = 1
	}
	if hours <= 0 {
		hours = 1
	}
	start := now.Add(-time.Duration(hours * float64(time.Hour)))
	slotDuration := (hours * 3600) / float64(slots)

	type bucketKey struct {
		agent string
		slot  int
	}
	latest := map[bucketKey]historyRow{}
	agents := map[string]bool{}

	for _, row := range rows {
		agents[row.Agent] = true
		if row.Timestamp.Before(start) {
			continue
		}
		elapsed := row.Timestamp.Sub(start).Seconds()
		idx := int(elapsed / slotDuration)
		if idx < 0 || idx >= slots {
			continue
		}
		key := bucketKey{row.Agent, idx}
		if existing, ok := latest[key]; !ok || row.Timestamp.After(existing.Timestamp) {
			latest[key] = row
		}
	}

	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)

	timelines := make([]AgentTimeline, 0, len(names))
	for _, name := range names {
		chars := make([]string, slots)
		colors := make([]string, slots)
		for i := 0; i < slots; i++ {
			if row, ok := latest[bucketKey{name, i}]; ok {
				chars[i] = charFor(row.Status)
				colors[i] = displayFor(row.Status).Color
			} else {
				chars[i] = emptySlotChar
				colors[i] = "dim"
			}
		}
		timelines = append(timelines, AgentTimeline{Agent: name, StatusChars: chars, StatusColors: colors})
	}

	return TimelineResponse{Hours: hours, Slots: slots, Timelines: timelines}
}
