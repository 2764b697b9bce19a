package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sweeney/asterisk-callcenter/internal/ami"
	"github.com/sweeney/asterisk-callcenter/internal/store"
)

// handleBridgeEnter updates the bridge's channel set. A bridge reaching
// exactly two members both answers a ringing attempt and arms the
// at-most-once recording trigger.
func (e *Engine) handleBridgeEnter(evt ami.Event) {
	bridgeID := evt.Get("BridgeUniqueid")
	if bridgeID == "" {
		return
	}

	b := e.bridges[bridgeID]
	if b == nil {
		b = &bridgeState{id: bridgeID}
		e.bridges[bridgeID] = b
	}
	if b.linkedID == "" {
		b.linkedID = evt.LinkedID()
	}

	channel := evt.Get("Channel")
	if channel != "" && !containsString(b.channels, channel) {
		b.channels = append(b.channels, channel)
	}

	if len(b.channels) != 2 {
		return
	}
	if b.linkedID != "" && e.ringing[b.linkedID] != nil {
		e.promoteToAnswered(b, evt)
	}
	e.maybeStartRecording(b)
}

// handleBridgeDestroy drops the bridge entry. The recording guard is kept
// until the call itself ends: a call is recorded at most once for its
// lifetime, re-bridging included.
func (e *Engine) handleBridgeDestroy(evt ami.Event) {
	bridgeID := evt.Get("BridgeUniqueid")
	if bridgeID == "" {
		return
	}
	delete(e.bridges, bridgeID)
}

// maybeStartRecording issues one MixMonitor start per linked id. The guard
// is set before the command goes out, so bridge events arriving before the
// switch responds cannot double-trigger. A failed command clears the guard
// so a later bridge event may retry.
func (e *Engine) maybeStartRecording(b *bridgeState) {
	linkedID := b.linkedID
	if linkedID == "" {
		return
	}
	if _, done := e.recorded[linkedID]; done {
		return
	}
	e.recorded[linkedID] = struct{}{}

	path := filepath.Join(e.cfg.RecordingDir,
		fmt.Sprintf("%s-%d-%s.wav", linkedID, e.clock().Unix(), e.newID()[:8]))
	target := recordingTarget(b.channels)

	action := ami.NewAction("MixMonitor",
		"Channel", target,
		"File", path,
		"Options", "b",
	)
	e.sendCommand(action, func(resp ami.Event) {
		if !resp.IsSuccess() {
			delete(e.recorded, linkedID)
			e.log.Warn("recording start rejected",
				"linkedId", linkedID, "channel", target, "message", resp.Get("Message"))
			return
		}
		if call := e.calls[linkedID]; call != nil {
			call.recordingPath = path
		}
		e.db.UpsertCall(store.CallUpdate{
			LinkedID:      linkedID,
			Status:        store.Ptr(store.StatusAnswered),
			RecordingPath: store.Ptr(path),
		})
		e.log.Info("recording started", "linkedId", linkedID, "path", path)
	})
}

// recordingTarget picks the end-station leg: the most recently joined PJSIP
// channel, which is the answering side of a two-party bridge.
func recordingTarget(channels []string) string {
	for i := len(channels) - 1; i >= 0; i-- {
		if strings.HasPrefix(channels[i], "PJSIP/") {
			return channels[i]
		}
	}
	return channels[len(channels)-1]
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
