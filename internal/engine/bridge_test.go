package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingStartedExactlyOnce(t *testing.T) {
	te := newTestEngine()
	te.send.respond = respondSuccess

	te.dispatch(evDialBegin("A1", "PJSIP/1001-00000002"))
	te.dispatch(evBridgeEnter("B1", "A1", "PJSIP/7001-00000001"))
	te.dispatch(evBridgeEnter("B1", "A1", "PJSIP/1001-00000002"))

	recs := te.send.named("MixMonitor")
	require.Len(t, recs, 1, "exactly one recording-start per linked id")

	action := recs[0].Action
	assert.Equal(t, "PJSIP/1001-00000002", action.Params["Channel"], "targets the leg that joined second")
	assert.True(t, strings.HasPrefix(action.Params["File"], "/var/spool/asterisk/monitor/A1-"))
	assert.True(t, strings.HasSuffix(action.Params["File"], ".wav"))

	// Duplicate joins with the same channel pair do not re-trigger.
	te.dispatch(evBridgeEnter("B1", "A1", "PJSIP/7001-00000001"))
	te.dispatch(evBridgeEnter("B1", "A1", "PJSIP/1001-00000002"))
	assert.Len(t, te.send.named("MixMonitor"), 1)

	rec, ok := te.db.Call("A1")
	require.True(t, ok)
	require.NotNil(t, rec.RecordingPath)
	assert.Equal(t, action.Params["File"], *rec.RecordingPath)
	assert.Equal(t, *rec.RecordingPath, te.calls["A1"].recordingPath)
}

func TestRecordingGuardSurvivesBridgeDestroy(t *testing.T) {
	te := newTestEngine()
	te.send.respond = respondSuccess

	te.answerCall("A1", "B1", "PJSIP/7001-00000001", "PJSIP/1001-00000002")
	require.Len(t, te.send.named("MixMonitor"), 1)

	te.dispatch(evBridgeDestroy("B1"))
	assert.Nil(t, te.bridges["B1"])

	// A second bridge for the same call (e.g. after a transfer) must not
	// record again.
	te.dispatch(evBridgeEnter("B2", "A1", "PJSIP/7001-00000001"))
	te.dispatch(evBridgeEnter("B2", "A1", "PJSIP/1001-00000002"))
	assert.Len(t, te.send.named("MixMonitor"), 1)
}

func TestRecordingFailureClearsGuardForRetry(t *testing.T) {
	te := newTestEngine()
	te.send.respond = respondError

	te.answerCall("A1", "B1", "PJSIP/7001-00000001", "PJSIP/1001-00000002")
	require.Len(t, te.send.named("MixMonitor"), 1)

	rec, _ := te.db.Call("A1")
	assert.Nil(t, rec.RecordingPath, "no path persisted on rejection")

	// The guard was rolled back, so the next bridge event retries.
	te.send.respond = respondSuccess
	te.dispatch(evBridgeEnter("B2", "A1", "PJSIP/7001-00000001"))
	te.dispatch(evBridgeEnter("B2", "A1", "PJSIP/1001-00000002"))
	require.Len(t, te.send.named("MixMonitor"), 2)

	rec, _ = te.db.Call("A1")
	require.NotNil(t, rec.RecordingPath)
}

func TestRecordingGuardSetBeforeCommandResolves(t *testing.T) {
	te := newTestEngine()

	// No respond hook: the command stays in flight. A duplicate join pair
	// arriving before the response must not double-trigger.
	te.answerCall("A1", "B1", "PJSIP/7001-00000001", "PJSIP/1001-00000002")
	te.dispatch(evBridgeEnter("B2", "A1", "PJSIP/7001-00000001"))
	te.dispatch(evBridgeEnter("B2", "A1", "PJSIP/1001-00000002"))

	assert.Len(t, te.send.named("MixMonitor"), 1)
}

func TestBridgeWithoutRingingAttemptStillRecords(t *testing.T) {
	te := newTestEngine()
	te.send.respond = respondSuccess

	// No DialBegin was seen (e.g. the daemon started mid-call).
	te.dispatch(evBridgeEnter("B9", "Z1", "PJSIP/7001-00000031"))
	te.dispatch(evBridgeEnter("B9", "Z1", "PJSIP/1001-00000032"))

	assert.Len(t, te.send.named("MixMonitor"), 1)
	assert.Nil(t, te.calls["Z1"], "no call promoted without a ringing attempt")
}

func TestRecordingGuardClearedWhenCallEnds(t *testing.T) {
	te := newTestEngine()
	te.send.respond = respondSuccess

	te.answerCall("A1", "B1", "PJSIP/7001-00000001", "PJSIP/1001-00000002")
	te.dispatch(evBridgeDestroy("B1"))
	te.dispatch(evHangup("A1", "PJSIP/7001-00000001", 16))
	te.dispatch(evHangup("A1", "PJSIP/1001-00000002", 16))

	assert.NotContains(t, te.recorded, "A1", "guard does not outlive the call")

	// The switch reuses linked ids after a restart; a fresh call under the
	// same id records again.
	te.dispatch(evDialBegin("A1", "PJSIP/1001-00000005"))
	te.dispatch(evBridgeEnter("B3", "A1", "PJSIP/7001-00000004"))
	te.dispatch(evBridgeEnter("B3", "A1", "PJSIP/1001-00000005"))
	assert.Len(t, te.send.named("MixMonitor"), 2)
}

func TestRecordingGuardClearedOnMissedCall(t *testing.T) {
	te := newTestEngine()
	te.send.respond = respondSuccess

	// A bridge forms without a ringing attempt (daemon started mid-call),
	// then the remaining ringing attempt for the same id is abandoned.
	te.dispatch(evBridgeEnter("B9", "Z1", "PJSIP/7001-00000031"))
	te.dispatch(evBridgeEnter("B9", "Z1", "PJSIP/1001-00000032"))
	require.Contains(t, te.recorded, "Z1")

	te.dispatch(evDialBegin("Z1", "PJSIP/1002-00000033"))
	te.dispatch(evHangup("Z1", "PJSIP/1002-00000033", 19))

	assert.NotContains(t, te.recorded, "Z1")
}

func TestRecordingTargetPrefersStationLeg(t *testing.T) {
	assert.Equal(t, "PJSIP/1001-2", recordingTarget([]string{"PJSIP/trunk-1", "PJSIP/1001-2"}))
	assert.Equal(t, "PJSIP/1001-2", recordingTarget([]string{"PJSIP/1001-2", "Local/123@q-1"}))
	assert.Equal(t, "Local/b-2", recordingTarget([]string{"Local/a-1", "Local/b-2"}))
}
