package auction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/auctionhub/coin-auction/internal/auction"
)

func TestLockTable_Exclusion(t *testing.T) {
	lt := auction.NewLockTable()
	ctx := context.Background()

	release, err := lt.Acquire(ctx, "a1", time.Second)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	// Second acquire on the same key times out while held.
	if _, err := lt.Acquire(ctx, "a1", 20*time.Millisecond); !errors.Is(err, auction.ErrConcurrentModification) {
		t.Fatalf("second Acquire err = %v, want ErrConcurrentModification", err)
	}

	// A different key is independent.
	release2, err := lt.Acquire(ctx, "a2", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire on independent key: %v", err)
	}
	release2()

	release()

	// Released lock is acquirable again.
	release3, err := lt.Acquire(ctx, "a1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release3()
}

func TestLockTable_ContextCancel(t *testing.T) {
	lt := auction.NewLockTable()

	release, err := lt.Acquire(context.Background(), "a1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lt.Acquire(ctx, "a1", time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire with cancelled ctx err = %v, want context.Canceled", err)
	}
}

func TestLockTable_SerializesCriticalSections(t *testing.T) {
	lt := auction.NewLockTable()
	ctx := context.Background()

	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lt.Acquire(ctx, "shared", 5*time.Second)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()
			// Unsynchronized increment: only safe if the lock serializes.
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
}
