package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	logins      atomic.Uint64
	messages    atomic.Uint64
	uploads     atomic.Uint64
	reports     atomic.Uint64
	bans        atomic.Uint64
	activeConns atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncLogin() {
	m.logins.Add(1)
}

func (m *Metrics) IncMessage() {
	m.messages.Add(1)
}

func (m *Metrics) IncUpload() {
	m.uploads.Add(1)
}

func (m *Metrics) IncReport() {
	m.reports.Add(1)
}

func (m *Metrics) IncBan() {
	m.bans.Add(1)
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"logins_total":       m.logins.Load(),
		"messages_total":     m.messages.Load(),
		"uploads_total":      m.uploads.Load(),
		"reports_total":      m.reports.Load(),
		"bans_total":         m.bans.Load(),
		"active_connections": m.activeConns.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
