package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	teacherID = 1
	studentID = 101
)

type relayFixture struct {
	relay *Relay
	key   Key

	mu  sync.Mutex
	now time.Time
}

func (f *relayFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *relayFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	f := &relayFixture{
		key: Key{QuizID: "quiz-1", StudentID: studentID},
		now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.relay = New(5*time.Minute, 3).WithClock(f.clock)
	return f
}

func (f *relayFixture) grant(t *testing.T) {
	t.Helper()
	f.relay.Request(f.key, teacherID)
	_, err := f.relay.Respond(f.key, true)
	require.NoError(t, err)
}

func frame(n int) Frame {
	return Frame{
		QuizID:    "quiz-1",
		StudentID: studentID,
		DataURL:   fmt.Sprintf("data:image/jpeg;base64,frame-%d", n),
	}
}

func TestPublish_RejectedWithoutConsent(t *testing.T) {
	f := newRelayFixture(t)

	err := f.relay.Publish(f.key, frame(1))
	assert.ErrorIs(t, err, ErrNoConsent)

	// A pending, unanswered request is not consent.
	f.relay.Request(f.key, teacherID)
	err = f.relay.Publish(f.key, frame(2))
	assert.ErrorIs(t, err, ErrNoConsent)
}

func TestPublish_RejectedAfterDenial(t *testing.T) {
	f := newRelayFixture(t)
	f.relay.Request(f.key, teacherID)

	consent, err := f.relay.Respond(f.key, false)
	require.NoError(t, err)
	assert.False(t, consent.Approved)

	err = f.relay.Publish(f.key, frame(1))
	assert.ErrorIs(t, err, ErrNoConsent)
}

func TestRespond_FailsWithoutPendingRequest(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.relay.Respond(f.key, true)
	assert.ErrorIs(t, err, ErrNoConsent)
}

func TestRespond_FailsAfterRequestTTL(t *testing.T) {
	f := newRelayFixture(t)
	f.relay.Request(f.key, teacherID)
	f.advance(6 * time.Minute)

	_, err := f.relay.Respond(f.key, true)
	assert.ErrorIs(t, err, ErrNoConsent)

	_, ok := f.relay.PendingFor(f.key)
	assert.False(t, ok)
}

func TestRequest_RefreshNeverDuplicates(t *testing.T) {
	f := newRelayFixture(t)

	f.relay.Request(f.key, teacherID)
	f.advance(time.Minute)
	second := f.relay.Request(f.key, teacherID)

	pending, ok := f.relay.PendingFor(f.key)
	require.True(t, ok)
	assert.Equal(t, second.RequestedAt, pending.RequestedAt)
}

func TestRequest_RevokesEarlierGrant(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	f.relay.Request(f.key, teacherID)

	err := f.relay.Publish(f.key, frame(1))
	assert.ErrorIs(t, err, ErrNoConsent)
}

func TestPublish_BuffersAndEvictsOldest(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	// Capacity is 3; the first frame falls off.
	for n := 1; n <= 4; n++ {
		require.NoError(t, f.relay.Publish(f.key, frame(n)))
	}

	obs, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)
	defer f.relay.Detach(f.key, obs)

	var got []string
	for range 3 {
		got = append(got, (<-obs.Frames).DataURL)
	}
	assert.Equal(t, []string{
		frame(2).DataURL,
		frame(3).DataURL,
		frame(4).DataURL,
	}, got)
	assert.Empty(t, obs.Frames)
}

func TestPublish_ForwardsToAttachedObserver(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	obs, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)
	defer f.relay.Detach(f.key, obs)

	require.NoError(t, f.relay.Publish(f.key, frame(1)))

	select {
	case got := <-obs.Frames:
		assert.Equal(t, frame(1).DataURL, got.DataURL)
		assert.Equal(t, f.clock(), got.ReceivedAt)
	default:
		t.Fatal("expected a forwarded frame")
	}
}

func TestAttach_RequiresGrantForSameTeacher(t *testing.T) {
	f := newRelayFixture(t)

	_, err := f.relay.Attach(f.key, teacherID)
	assert.ErrorIs(t, err, ErrNoConsent)

	f.grant(t)

	_, err = f.relay.Attach(f.key, 2)
	assert.ErrorIs(t, err, ErrNoConsent)
}

func TestAttach_ReplacesPriorObserver(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	first, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)

	second, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)
	defer f.relay.Detach(f.key, second)

	_, open := <-first.Frames
	assert.False(t, open)

	require.NoError(t, f.relay.Publish(f.key, frame(1)))
	assert.Len(t, second.Frames, 1)
}

func TestRevoke_ClosesStreamMidFlight(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	obs, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)

	require.NoError(t, f.relay.Publish(f.key, frame(1)))
	f.relay.Revoke(f.key)

	// The in-flight frame drains, then the channel closes.
	got, open := <-obs.Frames
	assert.True(t, open)
	assert.Equal(t, frame(1).DataURL, got.DataURL)

	_, open = <-obs.Frames
	assert.False(t, open)

	err = f.relay.Publish(f.key, frame(2))
	assert.ErrorIs(t, err, ErrNoConsent)
}

func TestDetach_IgnoresStaleObserver(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	first, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)
	second, err := f.relay.Attach(f.key, teacherID)
	require.NoError(t, err)

	// Detaching the replaced observer must not tear down the live one.
	f.relay.Detach(f.key, first)

	require.NoError(t, f.relay.Publish(f.key, frame(1)))
	assert.Len(t, second.Frames, 1)

	f.relay.Detach(f.key, second)
}

func TestConsentScopedPerQuizAndStudent(t *testing.T) {
	f := newRelayFixture(t)
	f.grant(t)

	otherQuiz := Key{QuizID: "quiz-2", StudentID: studentID}
	otherStudent := Key{QuizID: f.key.QuizID, StudentID: 202}

	assert.ErrorIs(t, f.relay.Publish(otherQuiz, frame(1)), ErrNoConsent)
	assert.ErrorIs(t, f.relay.Publish(otherStudent, frame(1)), ErrNoConsent)
	assert.NoError(t, f.relay.Publish(f.key, frame(1)))
}
