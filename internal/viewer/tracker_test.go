package viewer

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteRequest_ActivatesAfterEvaluate(t *testing.T) {
	tr := New(45*time.Second, hclog.NewNullLogger())
	tr.NoteRequest("c1", KindPlaylist)
	tr.evaluate()

	assert.True(t, tr.IsActive("c1"))
	select {
	case ev := <-tr.Events:
		assert.Equal(t, "c1", ev.ChannelID)
		assert.True(t, ev.Activate)
	default:
		t.Fatal("expected an activation event")
	}
}

func TestTracker_DeactivatesAfterGraceExpires(t *testing.T) {
	tr := New(10*time.Millisecond, hclog.NewNullLogger())
	tr.NoteRequest("c1", KindSegment)
	tr.evaluate()
	require.True(t, tr.IsActive("c1"))
	<-tr.Events // drain the activate event

	time.Sleep(20 * time.Millisecond)
	tr.evaluate()

	assert.False(t, tr.IsActive("c1"))
	select {
	case ev := <-tr.Events:
		assert.False(t, ev.Activate)
	default:
		t.Fatal("expected a deactivation event")
	}
}

func TestTracker_RepeatedRequestsWithinGraceStayActiveNoDuplicateEvents(t *testing.T) {
	tr := New(time.Second, hclog.NewNullLogger())
	tr.NoteRequest("c1", KindPlaylist)
	tr.evaluate()
	<-tr.Events

	tr.NoteRequest("c1", KindPlaylist)
	tr.evaluate()

	select {
	case ev := <-tr.Events:
		t.Fatalf("unexpected event while still within grace: %+v", ev)
	default:
	}
	assert.True(t, tr.IsActive("c1"))
}

func TestTracker_NoPresenceIsInactiveByDefault(t *testing.T) {
	tr := New(time.Second, hclog.NewNullLogger())
	assert.False(t, tr.IsActive("never-seen"))
}
