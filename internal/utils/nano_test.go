package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNanoID(t *testing.T) {
	id := NanoID()
	assert.Len(t, id, NanoidSize)
	assert.True(t, ValidID(id))
	assert.NotEqual(t, id, NanoID())
	assert.Len(t, NanoIDSize(8), 8)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("11111111-1111-1111-1111-111111111111"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("../etc"))
	assert.False(t, ValidID("a b"))
}
