package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
)

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "plain path", path: "crowdcanvas.db", want: "crowdcanvas.db"},
		{name: "file scheme", path: "file:data/crowdcanvas.db", want: "data/crowdcanvas.db"},
		{name: "with query params", path: "file:crowdcanvas.db?cache=shared", want: "crowdcanvas.db"},
		{name: "url encoded", path: "my%20data.db", want: "my data.db"},
		{name: "memory", path: ":memory:", want: ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, database.ExtractDBNameFromPath(tt.path))
		})
	}
}
