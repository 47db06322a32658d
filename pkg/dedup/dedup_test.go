package dedup

import (
	"strconv"
	"testing"
	"time"
)

func TestShouldProcessDropsRepeats(t *testing.T) {
	d := New(time.Minute, 100)

	if !d.ShouldProcess("a") {
		t.Fatalf("first sighting must be processed")
	}
	if d.ShouldProcess("a") {
		t.Fatalf("repeat inside the ttl must be dropped")
	}
	if !d.ShouldProcess("b") {
		t.Fatalf("distinct id must be processed")
	}
}

func TestExpiredEntriesProcessAgain(t *testing.T) {
	d := New(10*time.Millisecond, 100)

	if !d.ShouldProcess("a") {
		t.Fatalf("first sighting must be processed")
	}
	time.Sleep(20 * time.Millisecond)
	if !d.ShouldProcess("a") {
		t.Fatalf("expired id must be processed again")
	}
}

func TestEmptyIDAlwaysProcessed(t *testing.T) {
	d := New(time.Minute, 100)
	if !d.ShouldProcess("") || !d.ShouldProcess("") {
		t.Fatalf("empty id must never be deduplicated")
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	d := New(5*time.Millisecond, 10)

	for i := 0; i < 10; i++ {
		d.ShouldProcess("old-" + strconv.Itoa(i))
	}
	time.Sleep(10 * time.Millisecond)

	// Crossing the cap triggers the sweep, which clears the expired set.
	if !d.ShouldProcess("new") {
		t.Fatalf("fresh id must be processed")
	}
	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n > 2 {
		t.Fatalf("expired entries should have been swept, %d left", n)
	}
}
