// Package layerfs provides uniform, navigable access to data nested inside
// arbitrarily deep chains of storage containers: a raw disk image holding a
// partition table, a partition holding a filesystem, a filesystem holding
// an archive, an archive holding a compressed stream, and so on.
//
// A consumer addresses any object with a single [PathSpec] chain encoding
// how to reach it through its nested containers. The resolver package turns
// such a chain into live handles by opening each ancestor layer in order,
// and its reference-counted context caches keep shared ancestors open
// exactly once while sibling objects are accessed.
//
// Format decoders are external engines plugged in behind the [FileObject]
// and [FileSystem] contracts; the adapters package ships built-ins for raw
// OS files, compressed streams (gzip, zstd, lz4), tar archives and
// partition tables.
package layerfs
