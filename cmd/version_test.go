package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildVersionPrefersStamp(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "v1.2.3"
	assert.Equal(t, "v1.2.3", buildVersion())

	version = ""
	assert.NotEmpty(t, buildVersion())
}
