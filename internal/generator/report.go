package generator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type ReportSignal struct {
	Code     string `json:"code"`
	Stage    string `json:"stage"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// SectionMetric records one section's generation call.
type SectionMetric struct {
	Heading      string `json:"heading"`
	Depth        int    `json:"depth"`
	SourceCount  int    `json:"source_count"`
	Fetched      int    `json:"fetched"`
	Placeholders int    `json:"placeholders"`
	ContextChars int    `json:"context_chars"`
	ContentChars int    `json:"content_chars"`
	Tokens       int    `json:"tokens"`
	DurationMS   int64  `json:"duration_ms"`
}

type ReportSummary struct {
	StageCount        int            `json:"stage_count"`
	SectionCount      int            `json:"section_count"`
	FailedStages      int            `json:"failed_stages"`
	TotalTokens       int            `json:"total_tokens"`
	Placeholders      int            `json:"placeholders"`
	SignalsBySeverity map[string]int `json:"signals_by_severity"`
}

// Report describes one document generation run. It is written next to the
// staged document for later inspection.
type Report struct {
	Version     string          `json:"version"`
	Document    string          `json:"document"`
	Output      string          `json:"output"`
	GeneratedAt string          `json:"generated_at"`
	Stages      []StageMetric   `json:"stages"`
	Sections    []SectionMetric `json:"sections"`
	Signals     []ReportSignal  `json:"signals,omitempty"`
	Summary     ReportSummary   `json:"summary"`
}

type StageHandle struct {
	name    string
	started time.Time
}

func NewReport(document, output string) *Report {
	return &Report{
		Version:     "v1",
		Document:    document,
		Output:      output,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Stages:      []StageMetric{},
		Sections:    []SectionMetric{},
		Signals:     []ReportSignal{},
	}
}

func (r *Report) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *Report) EndStage(h StageHandle, counters map[string]float64, err error) {
	if r == nil || h.name == "" {
		return
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     "ok",
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   cleanCounters(counters),
	}
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
	}
	r.Stages = append(r.Stages, m)
}

func (r *Report) AddSignal(code, stage, severity, message string) {
	if r == nil {
		return
	}
	s := ReportSignal{
		Code:     strings.TrimSpace(code),
		Stage:    strings.TrimSpace(stage),
		Severity: strings.ToLower(strings.TrimSpace(severity)),
		Message:  strings.TrimSpace(message),
	}
	if s.Code == "" || s.Stage == "" || s.Severity == "" || s.Message == "" {
		return
	}
	r.Signals = append(r.Signals, s)
}

func (r *Report) AddSection(m SectionMetric) {
	if r == nil {
		return
	}
	r.Sections = append(r.Sections, m)
}

func (r *Report) Finalize() {
	if r == nil {
		return
	}
	severityCount := map[string]int{"critical": 0, "warning": 0, "info": 0}
	sort.SliceStable(r.Signals, func(i, j int) bool {
		return signalPriority(r.Signals[i].Severity) > signalPriority(r.Signals[j].Severity)
	})
	for _, s := range r.Signals {
		severityCount[s.Severity]++
	}

	failed := 0
	for _, st := range r.Stages {
		if st.Status != "ok" {
			failed++
		}
	}
	tokens, placeholders := 0, 0
	for _, sec := range r.Sections {
		tokens += sec.Tokens
		placeholders += sec.Placeholders
	}

	r.Summary = ReportSummary{
		StageCount:        len(r.Stages),
		SectionCount:      len(r.Sections),
		FailedStages:      failed,
		TotalTokens:       tokens,
		Placeholders:      placeholders,
		SignalsBySeverity: severityCount,
	}
}

func (r *Report) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func cleanCounters(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func signalPriority(severity string) int {
	switch severity {
	case "critical":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}
