// Package datasource resolves tap locations into byte sources.
package datasource

import (
	"context"
	"io"
	"strings"

	"flowbridge/internal/datasource/file"
	"flowbridge/internal/datasource/httpds"
)

type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Resolve returns an HTTP source for http(s) locations and a local file
// source for everything else. client may be nil.
func Resolve(location string, client *httpds.Client) Source {
	if IsRemote(location) {
		if client == nil {
			client = httpds.NewClient(httpds.Config{MaxRetries: 3})
		}
		return httpds.Source{Client: client, URL: location}
	}
	return file.NewLocal(location)
}

// IsRemote reports whether location resolves to an HTTP source.
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
