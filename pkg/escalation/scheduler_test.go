package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSchedulerFires(t *testing.T) {
	s := NewTimerScheduler()
	fired := make(chan struct{})

	s.Schedule("case-1", 10*time.Millisecond, func() { close(fired) })
	assert.True(t, s.Armed("case-1"))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	require.Eventually(t, func() bool { return !s.Armed("case-1") },
		time.Second, 5*time.Millisecond, "fired timer must disarm itself")
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := NewTimerScheduler()
	fired := make(chan struct{}, 1)

	s.Schedule("case-1", 20*time.Millisecond, func() { fired <- struct{}{} })
	assert.True(t, s.Cancel("case-1"))
	assert.False(t, s.Armed("case-1"))

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}

	assert.False(t, s.Cancel("case-1"), "second cancel finds nothing")
}

func TestTimerSchedulerReplace(t *testing.T) {
	s := NewTimerScheduler()
	first := make(chan struct{}, 1)
	second := make(chan struct{})

	s.Schedule("case-1", 30*time.Millisecond, func() { first <- struct{}{} })
	s.Schedule("case-1", 10*time.Millisecond, func() { close(second) })

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement timer did not fire")
	}

	select {
	case <-first:
		t.Fatal("replaced timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
