package integration

import (
	"testing"

	"github.com/vnykmshr/parflow/pkg/scheduling/backend"
)

type backendCase struct {
	name string
	new  func() backend.Backend
}

var backendCases = []backendCase{
	{"native", func() backend.Backend { return backend.Native(backend.WithThreads(4)) }},
	{"work-stealing", func() backend.Backend { return backend.WorkStealing(backend.WithThreads(4)) }},
}

// forEachBackend runs fn as a subtest against a fresh backend of each kind.
func forEachBackend(t *testing.T, fn func(t *testing.T, b backend.Backend)) {
	t.Helper()
	for _, bc := range backendCases {
		t.Run(bc.name, func(t *testing.T) {
			b := bc.new()
			t.Cleanup(func() { _ = b.Close() })
			fn(t, b)
		})
	}
}
