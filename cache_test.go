package hyperbatch_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/hyperbatch"
)

func key(id hyperbatch.ID) hyperbatch.Key {
	return hyperbatch.CacheKey(&hyperbatch.Entity{ID: id, Checksum: "c"}, hyperbatch.KeyContext{Kind: "WorkPackage"})
}

func TestCache_GetSet(t *testing.T) {
	c := hyperbatch.NewCache()

	_, ok := c.Get(key(1))
	assert.False(t, ok)

	doc := hyperbatch.NewDocument()
	doc.Set("subject", "x")
	c.Set(key(1), doc)

	got, ok := c.Get(key(1))
	require.True(t, ok)
	assert.Same(t, doc, got)
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestCache_TTL(t *testing.T) {
	c := hyperbatch.NewCache(hyperbatch.WithTTL(10 * time.Millisecond))
	c.Set(key(1), hyperbatch.NewDocument())

	_, ok := c.Get(key(1))
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get(key(1))
	assert.False(t, ok, "entry should expire")
	assert.Zero(t, c.Size(), "expired entry is evicted on read")
}

func TestCache_Concurrent(t *testing.T) {
	c := hyperbatch.NewCache()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id hyperbatch.ID) {
			defer wg.Done()
			c.Set(key(id), hyperbatch.NewDocument())
			_, _ = c.Get(key(id))
		}(hyperbatch.ID(i % 10))
	}
	wg.Wait()
	assert.Equal(t, 10, c.Size())
}
