// Package sister implements the Sister Aggregator (spec.md §4.P): polls
// peer Overcode instances' read-only Web API and merges their agents into
// the local view as read-only virtual sessions. There is no long-lived
// connection — each poll is an independent request, re-fetched on demand.
package sister

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mkb23/overcode/internal/store"
)

// Timeout bounds a single sister poll (spec.md §4.P).
const Timeout = 5 * time.Second

// Config is one configured sister instance (mirrors config.Sister).
type Config struct {
	Name   string
	URL    string
	APIKey string
}

// RemoteAgent is the wire shape of one entry in a sister's `/api/status`
// agent list. Field names and types mirror internal/web.AgentInfo
// exactly, not an internal convention — a sister poll is a real HTTP
// request against another Overcode instance's public Web API, so this
// struct's json tags are the actual external contract, the same way
// internal/web.AgentInfo itself mirrors web_api.py's _build_agent_info.
// The remote side never publishes raw lifecycle or per-kind token
// counts (only an activity status string and a token total), so those
// are reconstructed approximately in buildSessions.
type RemoteAgent struct {
	Name       string `json:"name"`
	ParentName string `json:"parent_name,omitempty"`

	Status   string `json:"status"`
	Activity string `json:"activity"`

	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`

	IsAsleep bool `json:"is_asleep"`

	HumanInteractions int   `json:"human_interactions"`
	RobotSteers       int   `json:"robot_steers"`
	TokensRaw         int64 `json:"tokens_raw"`
	CostUSD           float64 `json:"cost_usd"`

	GreenTimeRaw    float64 `json:"green_time_raw"`
	NonGreenTimeRaw float64 `json:"non_green_time_raw"`
	SleepTimeRaw    float64 `json:"sleep_time_raw"`
	TimeInStateRaw  float64 `json:"time_in_state_raw"`
}

type statusResponse struct {
	Agents []RemoteAgent `json:"agents"`
}

// Result is the outcome of polling one sister.
type Result struct {
	Name      string
	Reachable bool
	LastError string
	Sessions  []store.Session
}

// Fetcher polls sister instances over HTTP.
type Fetcher struct {
	Client *http.Client
}

// NewFetcher returns a Fetcher with spec.md's 5s sister timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: Timeout}}
}

// Fetch polls one sister's /api/status and converts its agent list into
// virtual sessions. On any failure it returns Reachable=false with
// LastError set and no sessions — never a Go error, since the caller
// (the monitor tick) must keep going across all configured sisters.
func (f *Fetcher) Fetch(ctx context.Context, cfg Config) Result {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+"/api/status", nil)
	if err != nil {
		return Result{Name: cfg.Name, Reachable: false, LastError: err.Error()}
	}
	if cfg.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return Result{Name: cfg.Name, Reachable: false, LastError: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: cfg.Name, Reachable: false, LastError: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Name: cfg.Name, Reachable: false, LastError: fmt.Sprintf("decoding response: %v", err)}
	}

	host := Host(cfg.URL)
	sessions := buildSessions(cfg, host, parsed.Agents, time.Now())
	return Result{Name: cfg.Name, Reachable: true, Sessions: sessions}
}

// Host extracts the host:port component of a sister URL, used both for
// the virtual session id and the source_host field.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// VirtualID is the id convention for a remote agent (spec.md §4.P):
// "remote:<host>:<name>".
func VirtualID(host, name string) string {
	return fmt.Sprintf("remote:%s:%s", host, name)
}

func buildSessions(cfg Config, host string, agents []RemoteAgent, now time.Time) []store.Session {
	byName := make(map[string]string, len(agents)) // name -> virtual id
	for _, a := range agents {
		byName[a.Name] = VirtualID(host, a.Name)
	}

	sessions := make([]store.Session, 0, len(agents))
	for _, a := range agents {
		sess := store.Session{
			ID:           VirtualID(host, a.Name),
			Name:         a.Name,
			TmuxSession:  "",
			TmuxWindow:   0,
			Status:       remoteLifecycle(a.Status),
			IsAsleep:     a.IsAsleep,
			RepoName:     nonEmptyPtr(a.Repo),
			Branch:       nonEmptyPtr(a.Branch),
			IsRemote:     true,
			SourceURL:    cfg.URL,
			SourceAPIKey: cfg.APIKey,
			SourceHost:   host,
			Stats: store.SessionStats{
				InteractionCount: a.HumanInteractions + a.RobotSteers,
				SteersCount:      a.RobotSteers,
				TotalTokens:      a.TokensRaw,
				EstimatedCostUSD: a.CostUSD,
				GreenTimeSeconds: a.GreenTimeRaw,
				NonGreenTimeSeconds: a.NonGreenTimeRaw,
				SleepTimeSeconds:    a.SleepTimeRaw,
				CurrentState:        a.Status,
				StateSince:          store.ISOTime(now.Add(-time.Duration(a.TimeInStateRaw * float64(time.Second)))),
				CurrentTask:         a.Activity,
			},
		}
		if a.ParentName != "" {
			if parentID, ok := byName[a.ParentName]; ok {
				sess.ParentSessionID = &parentID
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// remoteLifecycle maps a sister's activity status onto our coarse
// Lifecycle axis. The wire format carries only an activity status
// (spec.md §4.Q), never the separate lifecycle field — "terminated" is
// the one activity status that also means the session is gone; every
// other value means it is still running from our point of view.
func remoteLifecycle(activityStatus string) store.Lifecycle {
	if activityStatus == "terminated" {
		return store.LifecycleTerminated
	}
	return store.LifecycleRunning
}
