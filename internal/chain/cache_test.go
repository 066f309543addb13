package chain

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func hashN(n int) common.Hash {
	return common.HexToHash(fmt.Sprintf("0x%064x", n))
}

func TestTimestampCache_PutGet(t *testing.T) {
	cache := NewTimestampCache(4)

	cache.Put(hashN(1), 1000)
	ts, ok := cache.Get(hashN(1))
	if !ok {
		t.Fatal("expected cache hit")
	}
	if ts != 1000 {
		t.Errorf("expected timestamp 1000, got %d", ts)
	}

	if _, ok := cache.Get(hashN(2)); ok {
		t.Error("expected cache miss for unknown hash")
	}
}

func TestTimestampCache_EvictsOldest(t *testing.T) {
	cache := NewTimestampCache(3)

	for i := 1; i <= 4; i++ {
		cache.Put(hashN(i), uint64(i*100))
	}

	if cache.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get(hashN(1)); ok {
		t.Error("oldest entry should have been evicted")
	}
	for i := 2; i <= 4; i++ {
		if _, ok := cache.Get(hashN(i)); !ok {
			t.Errorf("expected entry %d to survive", i)
		}
	}
}

func TestTimestampCache_UpdateDoesNotEvict(t *testing.T) {
	cache := NewTimestampCache(2)

	cache.Put(hashN(1), 100)
	cache.Put(hashN(2), 200)
	cache.Put(hashN(1), 150) // update in place

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	ts, ok := cache.Get(hashN(1))
	if !ok || ts != 150 {
		t.Errorf("expected updated timestamp 150, got %d (ok=%v)", ts, ok)
	}
	if _, ok := cache.Get(hashN(2)); !ok {
		t.Error("entry 2 should not have been evicted by an update")
	}
}

func TestTimestampCache_ZeroCapacityDefaults(t *testing.T) {
	cache := NewTimestampCache(0)
	cache.Put(hashN(1), 100)
	if _, ok := cache.Get(hashN(1)); !ok {
		t.Error("cache with defaulted capacity should store entries")
	}
}
