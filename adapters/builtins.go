package adapters

import (
	"github.com/brettbedarf/layerfs/resolver"
)

type BuiltInAdapterType = string

const (
	OSAdapterType               BuiltInAdapterType = "os"
	CompressedStreamAdapterType BuiltInAdapterType = "compressed_stream"
	TARAdapterType              BuiltInAdapterType = "tar"
)

// RegisterBuiltins registers all built-in adapters by default or only the
// specific ones if keys are provided. The partition adapter is not a
// builtin: it needs a volume-system decoder, so it is registered
// explicitly through [RegisterPartition].
func RegisterBuiltins(reg *resolver.Registry, keys ...BuiltInAdapterType) {
	if reg == nil {
		reg = resolver.DefaultRegistry
	}
	if len(keys) == 0 {
		// Include all built-in adapters here when adding implementations
		keys = append(keys, OSAdapterType, CompressedStreamAdapterType, TARAdapterType)
	}

	for _, key := range keys {
		switch key {
		case OSAdapterType:
			RegisterOS(reg)
		case CompressedStreamAdapterType:
			RegisterCompressedStream(reg)
		case TARAdapterType:
			RegisterTAR(reg)
		}
	}
}
