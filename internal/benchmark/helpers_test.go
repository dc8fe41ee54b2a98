package benchmark

import (
	"fmt"
	"testing"

	"github.com/vnykmshr/parflow/pkg/scheduling/backend"
)

func threadLabel(n int) string {
	return fmt.Sprintf("threads=%d", n)
}

// eachBackend runs fn once per backend kind, closing the backend afterwards.
func eachBackend(b *testing.B, fn func(b *testing.B, be backend.Backend)) {
	kinds := []struct {
		name string
		new  func() backend.Backend
	}{
		{"native", func() backend.Backend { return backend.Native() }},
		{"work-stealing", func() backend.Backend { return backend.WorkStealing() }},
	}

	for _, k := range kinds {
		b.Run(k.name, func(b *testing.B) {
			be := k.new()
			defer be.Close()
			fn(b, be)
		})
	}
}
