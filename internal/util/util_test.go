package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ground-floor-cafe", Slugify("Ground Floor Café"))
	assert.Equal(t, "riser-3", Slugify("  Riser #3 "))
	assert.Equal(t, "", Slugify("---"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Stairwell B", Normalize("Stairwell B\x00\x00\x00"))
	assert.Equal(t, "Loading Bay", Normalize("  Loading Bay  "))
	assert.Equal(t, "", Normalize("\x00"))
}
