package dedup

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistrySeenMark(t *testing.T) {
	r := NewRegistry()
	if r.Seen("sku-1") {
		t.Fatalf("empty registry reports sku-1 as seen")
	}
	r.Mark("sku-1")
	if !r.Seen("sku-1") {
		t.Fatalf("sku-1 should be seen after Mark")
	}
	r.Mark("sku-1")
	if got := r.Len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}

func TestRegistryClaim(t *testing.T) {
	r := NewRegistry()
	if !r.Claim("sku-1") {
		t.Fatalf("first claim should win")
	}
	if r.Claim("sku-1") {
		t.Fatalf("second claim should lose")
	}
	if !r.Seen("sku-1") {
		t.Fatalf("claimed id should be seen")
	}
}

func TestRegistryClaimConcurrent(t *testing.T) {
	r := NewRegistry()
	const ids = 50
	const workers = 16

	var wins int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				if r.Claim("sku-" + strconv.Itoa(i)) {
					atomic.AddInt64(&wins, 1)
				}
			}
		}()
	}
	wg.Wait()

	if wins != ids {
		t.Fatalf("wins = %d, want %d", wins, ids)
	}
	if got := r.Len(); got != ids {
		t.Fatalf("len = %d, want %d", got, ids)
	}
}

func TestRegistryOffer(t *testing.T) {
	tests := []struct {
		name          string
		offers        []int
		wantHeld      []bool
		wantDisplaced []int
	}{
		{
			name:          "discovery order",
			offers:        []int{2, 5},
			wantHeld:      []bool{true, false},
			wantDisplaced: []int{-1, -1},
		},
		{
			name:          "earlier rank arrives late",
			offers:        []int{5, 2, 7, 1},
			wantHeld:      []bool{true, true, false, true},
			wantDisplaced: []int{-1, 5, -1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for i, rank := range tt.offers {
				held, displaced, replaced := r.Offer("sku-1", rank)
				if held != tt.wantHeld[i] {
					t.Fatalf("Offer(%d) held = %v, want %v", rank, held, tt.wantHeld[i])
				}
				if want := tt.wantDisplaced[i]; (want >= 0) != replaced || (replaced && displaced != want) {
					t.Fatalf("Offer(%d) displaced = %d (%v), want %d", rank, displaced, replaced, want)
				}
			}
			if r.Len() != 1 {
				t.Fatalf("len = %d, want 1", r.Len())
			}
		})
	}
}

func TestRegistryOfferAfterClaim(t *testing.T) {
	r := NewRegistry()
	r.Claim("sku-1")
	if held, _, _ := r.Offer("sku-1", 0); held {
		t.Fatalf("claimed id must not be taken by an offer")
	}
}

func TestRegistryOfferConcurrent(t *testing.T) {
	r := NewRegistry()
	const ranks = 64

	var wg sync.WaitGroup
	for rank := ranks - 1; rank >= 0; rank-- {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			r.Offer("sku-1", rank)
		}(rank)
	}
	wg.Wait()

	if held, _, _ := r.Offer("sku-1", 0); held {
		t.Fatalf("rank 0 should already hold the id")
	}
}
