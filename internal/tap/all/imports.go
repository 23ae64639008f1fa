// Package all links every built-in tap kind and storage backend.
package all

import (
	_ "flowbridge/internal/storage/all"
	_ "flowbridge/internal/tap/csvtap"
	_ "flowbridge/internal/tap/jsontap"
	_ "flowbridge/internal/tap/recfile"
	_ "flowbridge/internal/tap/sqltap"
)
