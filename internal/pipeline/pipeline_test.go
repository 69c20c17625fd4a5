package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skovlund/netwatch/internal/merge"
	"github.com/skovlund/netwatch/internal/model"
)

// fakeDestination records staged batches in memory and can be told to fail
// the next n bulk loads.
type fakeDestination struct {
	mu          sync.Mutex
	staged      map[string][]model.NormalizedEvent
	loads       [][]model.NormalizedEvent
	obs         []model.DeviceObservation
	profiles    []merge.Update
	failLoads   int
	failLabel   string // loads of this label's batches always fail
	loadedCh    chan int
	nextStageID int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		staged:   make(map[string][]model.NormalizedEvent),
		loadedCh: make(chan int, 16),
	}
}

func (f *fakeDestination) Stage(label string, events []model.NormalizedEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextStageID++
	path := label + "-staged"
	f.staged[path] = append([]model.NormalizedEvent(nil), events...)
	return path, nil
}

func (f *fakeDestination) EnsurePartition(context.Context, time.Time) error { return nil }

func (f *fakeDestination) BulkLoadEvents(_ context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoads > 0 {
		f.failLoads--
		return 0, errors.New("load failed")
	}
	if f.failLabel != "" && strings.HasPrefix(path, f.failLabel+"-") {
		return 0, errors.New("load failed for label " + f.failLabel)
	}
	events := f.staged[path]
	f.loads = append(f.loads, events)
	select {
	case f.loadedCh <- len(events):
	default:
	}
	return int64(len(events)), nil
}

func (f *fakeDestination) InsertObservations(_ context.Context, obs []model.DeviceObservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, obs...)
	return nil
}

func (f *fakeDestination) MergeProfiles(_ context.Context, updates []merge.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, updates...)
	return nil
}

func (f *fakeDestination) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func testEvent(msg string) model.NormalizedEvent {
	return model.NormalizedEvent{
		ReceivedAt: time.Now().UTC(),
		Message:    msg,
		RawMessage: msg,
		Source:     model.SourceRouter,
	}
}

func waitForLoad(t *testing.T, f *fakeDestination) int {
	t.Helper()
	select {
	case n := <-f.loadedCh:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a flush")
		return 0
	}
}

func TestScheduler_SizeTrigger(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()
	s := NewScheduler(buf, dest, time.Hour, 3,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	buf.Add(testEvent("a"))
	buf.Add(testEvent("b"))
	buf.Add(testEvent("c"))

	n := waitForLoad(t, dest)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, buf.Len())

	cancel()
	<-done
}

func TestScheduler_TimeTriggerUnderThreshold(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()
	// One event, well under minBatch 100; a short interval flushes it anyway.
	s := NewScheduler(buf, dest, 20*time.Millisecond, 100,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	buf.Add(testEvent("lonely"))

	n := waitForLoad(t, dest)
	assert.Equal(t, 1, n)

	cancel()
	<-done
}

func TestScheduler_RetryThenSuccess(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()
	dest.failLoads = 2 // two failures, third attempt succeeds

	s := NewScheduler(buf, dest, time.Hour, 1,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	buf.Add(testEvent("retry me"))

	n := waitForLoad(t, dest)
	assert.Equal(t, 1, n)

	cancel()
	<-done
}

func TestScheduler_DropAfterExhaustedRetries(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()
	dest.failLoads = 3 // all attempts fail; batch is dropped

	var committed []Mark
	s := NewScheduler(buf, dest, time.Hour, 1,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond),
		WithCommit(func(marks []Mark) error {
			committed = append(committed, marks...)
			return nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	buf.AddMarked(testEvent("doomed"), Mark{EventAt: time.Now()})

	// Wait for the three attempts to burn through, then stop. The buffer
	// must be empty (dropped, not retained) and the checkpoint untouched.
	deadline := time.After(2 * time.Second)
	for buf.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("batch never drained")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	assert.Equal(t, 0, dest.loadCount())
	assert.Empty(t, committed, "checkpoint must not advance for a dropped batch")
}

func TestScheduler_CommitCarriesMarks(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()

	var mu sync.Mutex
	var committed []Mark
	s := NewScheduler(buf, dest, time.Hour, 2,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond),
		WithCommit(func(marks []Mark) error {
			mu.Lock()
			defer mu.Unlock()
			committed = append(committed, marks...)
			return nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	t1 := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	buf.AddMarked(testEvent("one"), Mark{EventAt: t1})
	buf.AddMarked(testEvent("two"), Mark{EventAt: t2})

	waitForLoad(t, dest)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, committed, 2)
	assert.True(t, committed[0].EventAt.Equal(t1))
	assert.True(t, committed[1].EventAt.Equal(t2))
}

func TestScheduler_FinalFlushOnShutdown(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()
	// Huge interval and threshold: only the shutdown path can flush.
	s := NewScheduler(buf, dest, time.Hour, 1000,
		WithTick(time.Hour), WithRetryDelay(time.Millisecond))

	buf.Add(testEvent("left over"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	require.Equal(t, 1, dest.loadCount())
	assert.Len(t, dest.loads[0], 1)
}

func TestScheduler_SyslogBatchDerivesObservations(t *testing.T) {
	buf := NewBuffer(model.SourceSyslog)
	dest := newFakeDestination()
	s := NewScheduler(buf, dest, time.Hour, 1,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	ev := testEvent("DHCPACK(br0) 10.0.0.7 aa:bb:cc:dd:ee:ff phone")
	ev.Source = model.SourceSyslog
	ev.AppName = "dnsmasq-dhcp"
	buf.Add(ev)

	waitForLoad(t, dest)
	cancel()
	<-done

	dest.mu.Lock()
	defer dest.mu.Unlock()
	require.Len(t, dest.obs, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dest.obs[0].MAC)
	require.Len(t, dest.profiles, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dest.profiles[0].MAC)
}

func TestScheduler_RouterBatchSkipsObservations(t *testing.T) {
	buf := NewBuffer(model.SourceRouter)
	dest := newFakeDestination()
	s := NewScheduler(buf, dest, time.Hour, 1,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	// A MAC in a router line must not produce observations; only the
	// syslog label feeds entity resolution.
	buf.Add(testEvent("client aa:bb:cc:dd:ee:ff dropped"))

	waitForLoad(t, dest)
	cancel()
	<-done

	dest.mu.Lock()
	defer dest.mu.Unlock()
	assert.Empty(t, dest.obs)
}

func TestScheduler_LabelFailureDoesNotAffectOthers(t *testing.T) {
	dest := newFakeDestination()
	dest.failLabel = model.SourceRouter

	routerBuf := NewBuffer(model.SourceRouter)
	syslogBuf := NewBuffer(model.SourceSyslog)
	routerSched := NewScheduler(routerBuf, dest, time.Hour, 1,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))
	syslogSched := NewScheduler(syslogBuf, dest, time.Hour, 1,
		WithTick(5*time.Millisecond), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{}, 2)
	go func() { routerSched.Run(ctx); done <- struct{}{} }()
	go func() { syslogSched.Run(ctx); done <- struct{}{} }()

	routerBuf.Add(testEvent("router line"))
	ev := testEvent("syslog line")
	ev.Source = model.SourceSyslog
	syslogBuf.Add(ev)

	// The syslog batch loads even while every router load is failing.
	n := waitForLoad(t, dest)
	assert.Equal(t, 1, n)

	cancel()
	<-done
	<-done

	require.Equal(t, 1, dest.loadCount())
	assert.Equal(t, "syslog line", dest.loads[0][0].Message)
}

func TestBuffer_SnapshotDrains(t *testing.T) {
	buf := NewBuffer(model.SourceSyslog)
	buf.Add(testEvent("a"))
	buf.Add(testEvent("b"))

	entries := buf.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, 0, buf.Len())
	assert.Empty(t, buf.Snapshot())
}

func TestMark_IsZero(t *testing.T) {
	assert.True(t, Mark{}.IsZero())
	assert.False(t, Mark{EventAt: time.Now()}.IsZero())
	assert.False(t, Mark{Channel: "ch", RecordID: 1}.IsZero())
}
