package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoneInvalidationKeys_RenameDropsBothNames(t *testing.T) {
	keys := zoneInvalidationKeys("tenant-123", "Alger", "Alger Centre")

	assert.Equal(t, []string{
		"tesseract:logistics:zone:tenant-123:Alger",
		"tesseract:logistics:zone:tenant-123:Alger Centre",
	}, keys)
}

func TestZoneInvalidationKeys_DedupesUnchangedName(t *testing.T) {
	keys := zoneInvalidationKeys("tenant-123", "Oran", "Oran")

	assert.Equal(t, []string{"tesseract:logistics:zone:tenant-123:Oran"}, keys)
}
