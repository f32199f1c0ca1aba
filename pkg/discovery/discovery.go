// Package discovery builds the device roster (§4.6): explicit list,
// configuration map, or bus probe, in that order of precedence. It also
// owns the per-device statistics table and the ordered startup sequence
// that brings a discovered roster to a streaming-ready state.
package discovery

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/client"
	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

var logger = log.With("component", "discovery")

// BuildRoster resolves the device roster by precedence: an explicit CLI
// list wins outright; otherwise the configuration file's device map;
// otherwise a bus probe (§4.6). explicitIDs and cfg may both be empty, in
// which case probing is the only remaining source.
func BuildRoster(explicitIDs []frame.DeviceID, cfg *config.Root, busCfg transport.Config, probeWindow time.Duration) ([]frame.DeviceID, error) {
	if len(explicitIDs) > 0 {
		logger.Info("roster from explicit list", "op", "build_roster", "count", len(explicitIDs))
		return explicitIDs, nil
	}
	if cfg != nil && len(cfg.Devices) > 0 {
		ids := make([]frame.DeviceID, 0, len(cfg.Devices))
		for _, d := range cfg.Devices {
			ids = append(ids, frame.DeviceID(d.DeviceID))
		}
		logger.Info("roster from configuration", "op", "build_roster", "count", len(ids))
		return ids, nil
	}
	found, err := ProbeWindow(busCfg, frame.MaxDeviceID, probeWindow, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]frame.DeviceID, 0, len(found))
	for _, d := range found {
		ids = append(ids, d.DeviceID)
	}
	logger.Info("roster from bus probe", "op", "build_roster", "count", len(ids))
	return ids, nil
}

// ProbeWindow is the supplemented discovery sweep from
// app_can_tool.py's bus-probe: instead of one caller-chosen window it
// takes a per-device timeout and an extra settle period, and derives the
// window once as maxID*perDeviceTimeout plus settle. That window is passed
// to client.Discover as a single fixed deadline; it is not extended while
// responders keep arriving.
func ProbeWindow(cfg transport.Config, maxID frame.DeviceID, perDeviceTimeout, settle time.Duration) ([]client.DiscoveredDevice, error) {
	window := time.Duration(maxID) * perDeviceTimeout
	if settle > 0 {
		window += settle
	}
	if window <= 0 {
		window = perDeviceTimeout
	}
	return client.Discover(cfg, maxID, window)
}

// Stats is the per-device observability snapshot from rhytmics_io.py's
// statistics export: last-seen time and counts per telemetry subtype,
// returned by daemon.Daemon.Stats. Nothing in StatsTable increments
// DroppedMag, so it stays zero.
type Stats struct {
	DeviceID    frame.DeviceID    `json:"device_id"`
	LastSeenMs  int64             `json:"last_seen_ms"`
	Counters    map[string]uint64 `json:"counters"`
	DroppedMag  uint64            `json:"dropped_mag"`
	IdleSince   int64             `json:"idle_since_ms,omitempty"`
}

// StatsTable tracks per-device counters fed by the listener's demuxed
// inboxes. The main loop is the sole writer (single-threaded per §5); a
// read-only Snapshot is safe to hand to an observability consumer.
type StatsTable struct {
	rows map[frame.DeviceID]*Stats
}

// NewStatsTable builds an empty table for the given roster.
func NewStatsTable(roster []frame.DeviceID) *StatsTable {
	t := &StatsTable{rows: make(map[frame.DeviceID]*Stats, len(roster))}
	for _, id := range roster {
		t.rows[id] = &Stats{DeviceID: id, Counters: make(map[string]uint64)}
	}
	return t
}

// Observe records one received frame against its device's counters.
func (t *StatsTable) Observe(id frame.DeviceID, f frame.Frame, nowMs int64) {
	row, ok := t.rows[id]
	if !ok {
		row = &Stats{DeviceID: id, Counters: make(map[string]uint64)}
		t.rows[id] = row
	}
	row.LastSeenMs = nowMs
	row.IdleSince = 0
	if f.IsStatus() {
		row.Counters["status"]++
		return
	}
	row.Counters[f.Subtype().String()]++
}

// MarkIdle flags every device whose last-seen time is older than
// idleAfter as idle, recording the instant idleness began (§4.6: "idle
// detection").
func (t *StatsTable) MarkIdle(nowMs int64, idleAfterMs int64) {
	for _, row := range t.rows {
		if row.IdleSince == 0 && len(row.Counters) > 0 && nowMs-row.LastSeenMs > idleAfterMs {
			row.IdleSince = nowMs
		}
	}
}

// Snapshot returns a stable copy of the current per-device statistics.
func (t *StatsTable) Snapshot() []Stats {
	out := make([]Stats, 0, len(t.rows))
	for _, row := range t.rows {
		cp := *row
		cp.Counters = make(map[string]uint64, len(row.Counters))
		for k, v := range row.Counters {
			cp.Counters[k] = v
		}
		out = append(out, cp)
	}
	return out
}
