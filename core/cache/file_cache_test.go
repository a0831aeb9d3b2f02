package cache

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestFileCachePutGet(t *testing.T) {
	c := New(0)
	if c.Cap() != DefaultSlots {
		t.Fatalf("Expected %d slots, got %d", DefaultSlots, c.Cap())
	}

	mod := time.Unix(1700000000, 0)
	if !c.Put("docs/index.html", []byte("<h1>hi</h1>"), mod) {
		t.Fatal("Put into empty cache should succeed")
	}

	e, ok := c.Get("docs/index.html")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if string(e.Content) != "<h1>hi</h1>" {
		t.Errorf("Unexpected content %q", e.Content)
	}
	if e.Size != 11 {
		t.Errorf("Expected size 11, got %d", e.Size)
	}
	if !e.LastModified.Equal(mod) {
		t.Errorf("Expected mtime %v, got %v", mod, e.LastModified)
	}

	if _, ok := c.Get("docs/other.html"); ok {
		t.Error("Expected miss for unknown path")
	}
}

func TestFileCacheOverwriteKeepsOneEntry(t *testing.T) {
	c := New(4)
	c.Put("a", []byte("one"), time.Time{})
	old, _ := c.Get("a")

	c.Put("a", []byte("two!"), time.Time{})
	if c.Len() != 1 {
		t.Fatalf("Expected 1 occupied slot after overwrite, got %d", c.Len())
	}

	e, _ := c.Get("a")
	if string(e.Content) != "two!" || e.Size != 4 {
		t.Errorf("Expected overwritten entry, got %q (%d)", e.Content, e.Size)
	}
	if string(old.Content) != "one" {
		t.Errorf("Published entry must not change, got %q", old.Content)
	}
}

func TestFileCacheSaturatesWithoutEviction(t *testing.T) {
	c := New(DefaultSlots)
	for i := 0; i < DefaultSlots; i++ {
		p := fmt.Sprintf("docs/f%d.txt", i)
		if !c.Put(p, []byte(p), time.Time{}) {
			t.Fatalf("Put %s should succeed below capacity", p)
		}
	}

	if c.Put("docs/overflow.txt", []byte("x"), time.Time{}) {
		t.Error("Put of a new path into a full cache should be dropped")
	}
	if _, ok := c.Get("docs/overflow.txt"); ok {
		t.Error("Overflow path must not be cached")
	}

	for i := 0; i < DefaultSlots; i++ {
		p := fmt.Sprintf("docs/f%d.txt", i)
		e, ok := c.Get(p)
		if !ok || !bytes.Equal(e.Content, []byte(p)) {
			t.Errorf("Entry %s was lost", p)
		}
	}

	// Existing paths may still be overwritten when full.
	if !c.Put("docs/f3.txt", []byte("new"), time.Time{}) {
		t.Error("Overwrite of an existing path must succeed when full")
	}
	if c.Len() != DefaultSlots {
		t.Errorf("Expected %d used slots, got %d", DefaultSlots, c.Len())
	}
}

func TestFileCacheRejectsEmptyPath(t *testing.T) {
	c := New(2)
	if c.Put("", []byte("x"), time.Time{}) {
		t.Error("Empty path must not be stored")
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", c.Len())
	}
}

func TestFileCacheConcurrentAccess(t *testing.T) {
	c := New(8)
	var wg sync.WaitGroup

	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				p := fmt.Sprintf("p%d", (g+i)%12)
				c.Put(p, []byte(p), time.Time{})
				if e, ok := c.Get(p); ok && string(e.Content) != p {
					t.Errorf("Entry for %s holds %q", p, e.Content)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() != 8 {
		t.Errorf("Expected all 8 slots used, got %d", c.Len())
	}
	seen := map[string]bool{}
	for i := 0; i < 12; i++ {
		p := fmt.Sprintf("p%d", i)
		if _, ok := c.Get(p); ok {
			seen[p] = true
		}
	}
	if len(seen) != 8 {
		t.Errorf("Expected 8 distinct cached paths, got %d", len(seen))
	}
}

func BenchmarkFileCacheGet(b *testing.B) {
	c := New(DefaultSlots)
	for i := 0; i < DefaultSlots; i++ {
		c.Put(fmt.Sprintf("docs/asset-%02d.css", i), []byte("body{}"), time.Time{})
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Get("docs/asset-63.css")
		}
	})
}
