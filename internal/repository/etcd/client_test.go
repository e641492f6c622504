package etcd

import (
	"sync"
	"testing"
)

// The leadership flag is written by the campaign goroutine while the policy
// engine polls it every cycle; this is only safe if the flag is atomic.
// Run with -race.
func TestLeaderFlagConcurrentAccess(t *testing.T) {
	leader := &Leader{}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			leader.isLeader.Store(i%2 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = leader.IsLeader()
		}
	}()

	wg.Wait()

	leader.isLeader.Store(true)
	if !leader.IsLeader() {
		t.Error("Expected IsLeader to reflect the stored flag")
	}
}
