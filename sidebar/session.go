// Package sidebar runs both ends of the assistant: the Controller behind the
// sidebar UI and the Host attached to the live document.
package sidebar

import (
	"sync"
	"time"

	"outline_assistant/metrics"
	"outline_assistant/observer"
	"outline_assistant/outline"
)

// Tab identifies a sidebar panel.
type Tab string

const (
	TabUpload   Tab = "upload"
	TabOutline  Tab = "outline"
	TabAnalysis Tab = "analysis"
)

// State is a copy of the session for display.
type State struct {
	Visible    bool
	Ready      bool
	ActiveTab  Tab
	Text       string
	LastEdit   time.Time
	Features   observer.Features
	Metrics    metrics.Snapshot
	Outline    *outline.Outline
	Generating bool
	LastError  string
}

// Session holds everything the sidebar knows. One Session belongs to one
// Controller; it is never shared between sidebars.
type Session struct {
	mu         sync.Mutex
	state      State
	generation uint64
}

func NewSession() *Session {
	return &Session{state: State{ActiveTab: TabUpload, Metrics: metrics.Compute("")}}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.Outline != nil {
		o := *st.Outline
		st.Outline = &o
	}
	return st
}

func (s *Session) setText(text string, features observer.Features, snap metrics.Snapshot, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Text = text
	s.state.Features = features
	s.state.Metrics = snap
	s.state.LastEdit = at
}

func (s *Session) setVisible(v bool) {
	s.mu.Lock()
	s.state.Visible = v
	s.mu.Unlock()
}

func (s *Session) setReady() {
	s.mu.Lock()
	s.state.Ready = true
	s.mu.Unlock()
}

func (s *Session) setTab(tab Tab) {
	s.mu.Lock()
	s.state.ActiveTab = tab
	s.mu.Unlock()
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.state.LastError = msg
	s.mu.Unlock()
}

// beginGeneration claims the next request number and returns the text to
// outline.
func (s *Session) beginGeneration() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.state.Generating = true
	return s.generation, s.state.Text
}

// finishGeneration records the result of request seq unless a later request
// was started meanwhile. It reports whether the result was kept.
func (s *Session) finishGeneration(seq uint64, o *outline.Outline, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.generation {
		return false
	}
	s.state.Generating = false
	if err != nil {
		s.state.LastError = err.Error()
		return true
	}
	s.state.Outline = o
	s.state.LastError = ""
	s.state.ActiveTab = TabOutline
	return true
}
