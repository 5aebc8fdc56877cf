package web

import (
	"encoding/json"
	"net/http"

	"github.com/mkb23/overcode/internal/launch"
	"github.com/mkb23/overcode/internal/store"
)

// decodeBody parses r's JSON body into v, writing a 400 apiError and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, &apiError{Status: 400, Message: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.SendText(r.Context(), body.ID, body.Text); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleSendKey(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.SendKey(r.Context(), body.ID, body.Key); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID      string `json:"id"`
		Cascade bool   `json:"cascade"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.Kill(r.Context(), body.ID, body.Cascade); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.Restart(r.Context(), body.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		Name                 string   `json:"name"`
		TmuxSession          string   `json:"tmux_session"`
		WorkDir              string   `json:"work_dir"`
		ParentName           string   `json:"parent_name"`
		Command              []string `json:"command"`
		PermissivenessMode   string   `json:"permissiveness_mode"`
		AllowedTools         []string `json:"allowed_tools"`
		ExtraClaudeArgs      []string `json:"extra_claude_args"`
		StandingInstructions string   `json:"standing_instructions"`
		InitialPrompt        string   `json:"initial_prompt"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	opts := launch.Options{
		Name:                 body.Name,
		TmuxSession:          body.TmuxSession,
		WorkDir:              body.WorkDir,
		ParentName:           body.ParentName,
		Command:              body.Command,
		PermissivenessMode:   store.PermissivenessMode(body.PermissivenessMode),
		AllowedTools:         body.AllowedTools,
		ExtraClaudeArgs:      body.ExtraClaudeArgs,
		StandingInstructions: body.StandingInstructions,
		InitialPrompt:        body.InitialPrompt,
	}
	sess, err := s.Surface.LaunchNew(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"session": sess})
}

func (s *Server) handleStandingOrders(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID           string  `json:"id"`
		Instructions string  `json:"instructions"`
		Preset       *string `json:"preset,omitempty"`
		Clear        bool    `json:"clear"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	var err error
	if body.Clear {
		err = s.Surface.ClearStandingOrders(body.ID)
	} else {
		err = s.Surface.SetStandingOrders(body.ID, body.Instructions, body.Preset)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID  string  `json:"id"`
		USD float64 `json:"usd"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.SetBudget(body.ID, body.USD); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID    string `json:"id"`
		Value int    `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.SetValue(body.ID, body.Value); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleAnnotation(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID         string `json:"id"`
		Annotation string `json:"annotation"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.SetAnnotation(body.ID, body.Annotation); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID     string `json:"id"`
		Asleep bool   `json:"asleep"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.SetSleep(body.ID, body.Asleep); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID          string `json:"id"`
		Frequency   string `json:"frequency"`
		Instruction string `json:"instruction"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.ConfigureHeartbeat(body.ID, body.Frequency, body.Instruction); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleHeartbeatPause(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.PauseHeartbeat(body.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleHeartbeatResume(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.ResumeHeartbeat(body.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleToggleTimeContext(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.ToggleTimeContext(body.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleToggleHookDetection(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.ToggleHookDetection(body.ID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleBulkTransport(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	var body struct {
		IDs               []string `json:"ids"`
		TargetTmuxSession string   `json:"target_tmux_session"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Surface.BulkTransport(body.IDs, body.TargetTmuxSession); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	count, err := s.Surface.Cleanup()
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"archived": count})
}

func (s *Server) handleRestartMonitor(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	if err := s.Surface.RestartMonitor(r.Context(), s.RestartMonitorSignal); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleStartSupervisor(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	if err := s.Surface.StartSupervisor(r.Context(), s.StartSupervisorSignal); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleStopSupervisor(w http.ResponseWriter, r *http.Request) {
	if !s.requireControl(w, r) {
		return
	}
	if err := s.Surface.StopSupervisor(r.Context(), s.StopSupervisorSignal); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}
