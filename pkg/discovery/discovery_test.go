package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

func TestBuildRosterPrefersExplicitList(t *testing.T) {
	explicit := []frame.DeviceID{3, 7}
	ids, err := BuildRoster(explicit, &config.Root{Devices: []config.DeviceConfig{{DeviceID: 9}}}, transport.Config{}, 0)
	assert.NoError(t, err)
	assert.Equal(t, explicit, ids)
}

func TestBuildRosterFallsBackToConfigWhenNoExplicitList(t *testing.T) {
	cfg := &config.Root{Devices: []config.DeviceConfig{{DeviceID: 4}, {DeviceID: 11}}}
	ids, err := BuildRoster(nil, cfg, transport.Config{}, 0)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []frame.DeviceID{4, 11}, ids)
}

func TestStatsTableObserveTracksLastSeenAndCounters(t *testing.T) {
	tbl := NewStatsTable([]frame.DeviceID{1})
	f := frame.EncodeEvent(frame.Event{Type: frame.EventSectorActivated})
	tbl.Observe(1, f, 1000)

	snap := tbl.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, int64(1000), snap[0].LastSeenMs)
	assert.Equal(t, uint64(1), snap[0].Counters["EVENT"])
}

func TestStatsTableMarkIdleFlagsStaleDevices(t *testing.T) {
	tbl := NewStatsTable([]frame.DeviceID{2})
	f := frame.EncodeStatus(frame.Status{Code: frame.StatusErrGeneric, Tag: 1})
	tbl.Observe(2, f, 0)

	tbl.MarkIdle(10000, 5000)

	snap := tbl.Snapshot()
	assert.Equal(t, int64(10000), snap[0].IdleSince)
}
