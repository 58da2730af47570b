package layerfs

import (
	"fmt"
	"path"
	"strings"
)

// TypeIndicator identifies the container format of one layer in a path
// specification chain.
type TypeIndicator string

const (
	// TypeOS is raw storage read directly from the operating system. It is
	// the only built-in kind that may appear without a parent.
	TypeOS TypeIndicator = "os"

	// TypeTAR is a tar archive layer.
	TypeTAR TypeIndicator = "tar"

	// TypeCompressedStream is a compressed byte-stream layer. The
	// compression method is carried as a layer attribute.
	TypeCompressedStream TypeIndicator = "compressed_stream"

	// TypeEncryptedStream is an encrypted byte-stream layer. No adapter
	// ships with this module; the constant reserves the indicator for
	// external decoders.
	TypeEncryptedStream TypeIndicator = "encrypted_stream"

	// TypePartition is a partition-table layer. The same indicator is used
	// for the table itself and for the partitions addressed inside it.
	TypePartition TypeIndicator = "partition"

	// Disk-image format layers. Decoders are external.
	TypeVHD  TypeIndicator = "vhd"
	TypeVMDK TypeIndicator = "vmdk"
	TypeQCOW TypeIndicator = "qcow"

	// Filesystem format layers. Decoders are external.
	TypeEXT TypeIndicator = "ext"
	TypeFAT TypeIndicator = "fat"
)

// CompressionMethod selects the decode engine of a compressed-stream layer.
type CompressionMethod string

const (
	MethodGzip CompressionMethod = "gzip"
	MethodZstd CompressionMethod = "zstd"
	MethodLZ4  CompressionMethod = "lz4"
)

// LocationRoot is the location of a container's root entry.
const LocationRoot = "/"

// parentlessTypes are the kinds that read directly from outside storage and
// therefore must not have a parent. Every other kind decodes a byte stream
// and must have one.
var parentlessTypes = map[TypeIndicator]bool{
	TypeOS: true,
}

var knownTypes = map[TypeIndicator]bool{
	TypeOS:               true,
	TypeTAR:              true,
	TypeCompressedStream: true,
	TypeEncryptedStream:  true,
	TypePartition:        true,
	TypeVHD:              true,
	TypeVMDK:             true,
	TypeQCOW:             true,
	TypeEXT:              true,
	TypeFAT:              true,
}

var knownMethods = map[CompressionMethod]bool{
	MethodGzip: true,
	MethodZstd: true,
	MethodLZ4:  true,
}

// Attrs carries the kind-specific attributes of a single layer. Unset
// pointer fields mean the attribute is absent.
type Attrs struct {
	Location    string            // path-like location inside the layer
	Identifier  string            // internal object identifier
	Method      CompressionMethod // compressed-stream decode method
	PartIndex   *int              // zero-based structural partition index
	StartOffset *int64            // byte offset inside the parent stream
}

// PathSpec is an immutable, chainable descriptor identifying one
// addressable object, possibly nested inside a parent descriptor. Two specs
// are equal iff every attribute matches at every level up to the root;
// equality is structural and is the basis for cache keys.
type PathSpec struct {
	typ         TypeIndicator
	parent      *PathSpec
	location    string
	identifier  string
	method      CompressionMethod
	partIndex   *int
	startOffset *int64
}

// NewPathSpec builds a descriptor for one layer on top of parent (nil for
// the outermost physical source). It fails with ErrInvalidPathSpec before
// any I/O when the kind/parent combination is malformed.
func NewPathSpec(t TypeIndicator, parent *PathSpec, attrs Attrs) (*PathSpec, error) {
	if !knownTypes[t] {
		return nil, fmt.Errorf("%w: unknown type indicator %q", ErrInvalidPathSpec, t)
	}
	if parentlessTypes[t] {
		if parent != nil {
			return nil, fmt.Errorf("%w: type %q does not take a parent", ErrInvalidPathSpec, t)
		}
	} else if parent == nil {
		return nil, fmt.Errorf("%w: type %q requires a parent", ErrInvalidPathSpec, t)
	}
	if t == TypeCompressedStream && !knownMethods[attrs.Method] {
		return nil, fmt.Errorf("%w: unknown compression method %q", ErrInvalidPathSpec, attrs.Method)
	}

	spec := &PathSpec{
		typ:        t,
		parent:     parent,
		location:   attrs.Location,
		identifier: attrs.Identifier,
		method:     attrs.Method,
	}
	// Copy optional attributes so the spec stays immutable even if the
	// caller reuses the Attrs value.
	if attrs.PartIndex != nil {
		idx := *attrs.PartIndex
		spec.partIndex = &idx
	}
	if attrs.StartOffset != nil {
		off := *attrs.StartOffset
		spec.startOffset = &off
	}
	return spec, nil
}

// NewOSPathSpec builds a parentless raw-storage descriptor for a location
// meaningful to the operating system.
func NewOSPathSpec(location string) *PathSpec {
	spec, _ := NewPathSpec(TypeOS, nil, Attrs{Location: location})
	return spec
}

// Type returns the layer's type indicator.
func (s *PathSpec) Type() TypeIndicator { return s.typ }

// Parent returns the parent descriptor, or nil for the outermost layer.
func (s *PathSpec) Parent() *PathSpec { return s.parent }

// HasParent reports whether the descriptor has a parent layer.
func (s *PathSpec) HasParent() bool { return s.parent != nil }

// Location returns the path-like location attribute, or "" when absent.
func (s *PathSpec) Location() string { return s.location }

// Identifier returns the internal object identifier attribute.
func (s *PathSpec) Identifier() string { return s.identifier }

// Method returns the compression method attribute.
func (s *PathSpec) Method() CompressionMethod { return s.method }

// PartIndex returns the structural partition index attribute.
func (s *PathSpec) PartIndex() (int, bool) {
	if s.partIndex == nil {
		return 0, false
	}
	return *s.partIndex, true
}

// StartOffset returns the byte start-offset attribute.
func (s *PathSpec) StartOffset() (int64, bool) {
	if s.startOffset == nil {
		return 0, false
	}
	return *s.startOffset, true
}

// Depth returns the zero-based position of this layer counted from the
// outermost layer of the chain.
func (s *PathSpec) Depth() int {
	depth := 0
	for cur := s.parent; cur != nil; cur = cur.parent {
		depth++
	}
	return depth
}

// Basename returns the last component of the location attribute, or ""
// when the descriptor carries no location.
func (s *PathSpec) Basename() string {
	if s.location == "" || s.location == LocationRoot {
		return ""
	}
	return path.Base(s.location)
}

// Validate re-checks the kind/parent invariant. Specs built through
// NewPathSpec always pass; this guards zero values built by callers.
func (s *PathSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil path specification", ErrInvalidPathSpec)
	}
	for cur := s; cur != nil; cur = cur.parent {
		if !knownTypes[cur.typ] {
			return fmt.Errorf("%w: unknown type indicator %q", ErrInvalidPathSpec, cur.typ)
		}
		if parentlessTypes[cur.typ] != (cur.parent == nil) {
			return fmt.Errorf("%w: type %q has wrong parent arity", ErrInvalidPathSpec, cur.typ)
		}
	}
	return nil
}

// Equal reports structural equality over the full chain.
func (s *PathSpec) Equal(other *PathSpec) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Key() == other.Key()
}

// Key returns a deterministic string over the full chain, suitable as a
// cache key. Layers appear outermost first.
func (s *PathSpec) Key() string {
	var b strings.Builder
	for _, layer := range s.chain() {
		fmt.Fprintf(&b, "type: %s", layer.typ)
		if layer.location != "" {
			fmt.Fprintf(&b, ", location: %s", layer.location)
		}
		if layer.identifier != "" {
			fmt.Fprintf(&b, ", identifier: %s", layer.identifier)
		}
		if layer.method != "" {
			fmt.Fprintf(&b, ", method: %s", layer.method)
		}
		if layer.partIndex != nil {
			fmt.Fprintf(&b, ", part_index: %d", *layer.partIndex)
		}
		if layer.startOffset != nil {
			fmt.Fprintf(&b, ", start_offset: %d", *layer.startOffset)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// ContainerRoot returns the descriptor of this layer's container root: the
// same type and parent with the root location and no record-addressing
// attributes. Sibling entries of one container share this root, so it is
// what file systems are cached under.
func (s *PathSpec) ContainerRoot() (*PathSpec, error) {
	return NewPathSpec(s.typ, s.parent, Attrs{Location: LocationRoot, Method: s.method})
}

// chain returns the layers outermost first.
func (s *PathSpec) chain() []*PathSpec {
	var layers []*PathSpec
	for cur := s; cur != nil; cur = cur.parent {
		layers = append(layers, cur)
	}
	for i, j := 0, len(layers)-1; i < j; i, j = i+1, j-1 {
		layers[i], layers[j] = layers[j], layers[i]
	}
	return layers
}

// String implements fmt.Stringer for log output.
func (s *PathSpec) String() string {
	return strings.TrimSuffix(strings.ReplaceAll(s.Key(), "\n", " | "), " | ")
}
