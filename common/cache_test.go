package common_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/guarzo/mystuff/common"
)

func TestCacheStore(t *testing.T) {
	cache := common.NewCacheStore()

	// 1) Set + Get
	cache.Set("foo", []byte("bar"), time.Hour)
	val, found := cache.Get("foo")
	assert.True(t, found, "expected 'foo' to be in cache")
	assert.Equal(t, "bar", string(val))

	// 2) Delete
	cache.Delete("foo")
	_, found = cache.Get("foo")
	assert.False(t, found, "expected 'foo' to be deleted")
}

func TestCacheStore_Expiration(t *testing.T) {
	cache := common.NewCacheStore()

	cache.Set("short", []byte("lived"), time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	_, found := cache.Get("short")
	assert.False(t, found)
}
