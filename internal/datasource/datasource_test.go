package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flowbridge/internal/datasource/file"
	"flowbridge/internal/datasource/httpds"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	assert.IsType(t, httpds.Source{}, Resolve("https://example.com/a.csv", nil))
	assert.IsType(t, httpds.Source{}, Resolve("HTTP://example.com/a.csv", nil))
	assert.IsType(t, &file.Local{}, Resolve("/tmp/a.csv", nil))

	assert.True(t, IsRemote("http://x/y"))
	assert.False(t, IsRemote("data/in.csv"))
}
