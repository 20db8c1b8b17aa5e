package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExtensions(t *testing.T) {
	assert.Equal(t, map[string]struct{}{"txt": {}, "log": {}}, ParseExtensions(".TXT, log,,"))
	assert.Equal(t, ResponseExtensions, ParseExtensions(""))
	assert.Equal(t, "md", NormalizeExt(".MD"))
}
