package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/magiconair/properties/assert"
)

func TestLoadProperties(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.properties")
	content := "store.mode=redis\n" +
		"store.redis.url=redis://10.0.0.1:6379/1\n" +
		"store.redis.queryLimit=40\n" +
		"store.redis.poolSize=16\n" +
		"store.sweep.interval=5s\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	oldLink, oldLimit, oldPool, oldSweep := RedisLink, LogQueryLimit, RedisPoolSize, SweepInterval
	defer func() {
		RedisLink, LogQueryLimit, RedisPoolSize, SweepInterval = oldLink, oldLimit, oldPool, oldSweep
	}()

	err := LoadProperties(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, RedisLink, "redis://10.0.0.1:6379/1")
	assert.Equal(t, LogQueryLimit, 40)
	assert.Equal(t, RedisPoolSize, 16)
	assert.Equal(t, SweepInterval.String(), "5s")
}

func TestLoadPropertiesRejectsZeroLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.properties")
	if err := os.WriteFile(path, []byte("store.redis.queryLimit=0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	oldLimit := LogQueryLimit
	defer func() { LogQueryLimit = oldLimit }()

	err := LoadProperties(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, LogQueryLimit, DefaultLogQueryLimit)
}
