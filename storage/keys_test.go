package storage

import (
	"testing"

	"github.com/magiconair/properties/assert"

	"TC/session"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, buildGlobalKey(1234), "global:1234")
	assert.Equal(t, buildBranchKey(5678), "branch:5678")
	assert.Equal(t, buildBranchListKey("192.168.1.1:8091:1234"), "branches:192.168.1.1:8091:1234")
	assert.Equal(t, buildStatusKey(session.StatusBegin), "status:1")
	assert.Equal(t, buildStatusKeyRaw("12"), "status:12")
	assert.Equal(t, globalKeyPattern, "global:*")
}
