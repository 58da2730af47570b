package adapters

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/layerfs"
	"github.com/brettbedarf/layerfs/internal/util"
	"github.com/brettbedarf/layerfs/resolver"
)

const testSectorSize = int64(512)

// testVolume lays out eight sectors: an allocated two-sector partition, an
// unallocated two-sector gap, and an allocated four-sector partition.
func testVolume() *StaticVolumeSystem {
	return NewStaticVolumeSystem(testSectorSize, []*VolumeRecord{
		{StartSector: util.Pointer(int64(0)), NumSectors: util.Pointer(int64(2)), Allocated: true},
		{StartSector: util.Pointer(int64(2)), NumSectors: util.Pointer(int64(2)), Allocated: false},
		{StartSector: util.Pointer(int64(4)), NumSectors: util.Pointer(int64(4)), Allocated: true},
	})
}

// testDiskBytes fills each sector with its sector number.
func testDiskBytes() []byte {
	data := make([]byte, 8*testSectorSize)
	for i := range data {
		data[i] = byte(int64(i) / testSectorSize)
	}
	return data
}

func newTestPartitionFS(t *testing.T) (*partitionFileSystem, *layerfs.PathSpec) {
	t.Helper()

	parent := layerfs.NewOSPathSpec("/tmp/disk.raw")
	root, err := layerfs.NewPathSpec(layerfs.TypePartition, parent, layerfs.Attrs{Location: layerfs.LocationRoot})
	require.NoError(t, err)

	fs := &partitionFileSystem{
		parent: newMemoryFileObject(testDiskBytes()),
		spec:   root,
		volume: testVolume(),
		logger: util.GetLogger("adapters.partitionFileSystem"),
	}
	return fs, root
}

func partitionSpec(t *testing.T, root *layerfs.PathSpec, attrs layerfs.Attrs) *layerfs.PathSpec {
	t.Helper()
	spec, err := layerfs.NewPathSpec(layerfs.TypePartition, root.Parent(), attrs)
	require.NoError(t, err)
	return spec
}

func TestPartitionFileSystem_Enumeration(t *testing.T) {
	t.Parallel()

	fs, _ := newTestPartitionFS(t)
	rootEntry, err := fs.GetRootFileEntry()
	require.NoError(t, err)
	assert.Equal(t, layerfs.EntryStateVirtualRoot, rootEntry.State())

	collect := func() (locations []string, partIndexes []int, offsets []int64) {
		for child, err := range rootEntry.SubFileEntries() {
			require.NoError(t, err)
			spec := child.PathSpec()
			locations = append(locations, spec.Location())
			idx, ok := spec.PartIndex()
			require.True(t, ok, "every record carries a structural index")
			partIndexes = append(partIndexes, idx)
			off, ok := spec.StartOffset()
			require.True(t, ok)
			offsets = append(offsets, off)
		}
		return
	}

	locations, partIndexes, offsets := collect()

	// Addressable names number the allocated records only; the structural
	// index numbers every record.
	assert.Equal(t, []string{"/p1", "", "/p2"}, locations)
	assert.Equal(t, []int{0, 1, 2}, partIndexes)
	assert.Equal(t, []int64{0, 2 * testSectorSize, 4 * testSectorSize}, offsets)

	// A second walk re-enumerates from scratch.
	locationsAgain, _, _ := collect()
	assert.Equal(t, locations, locationsAgain)
}

func TestPartitionFileSystem_Exists(t *testing.T) {
	t.Parallel()

	fs, root := newTestPartitionFS(t)

	for location, want := range map[string]bool{"/": true, "/p1": true, "/p2": true, "/p3": false} {
		exists, err := fs.FileEntryExistsByPathSpec(partitionSpec(t, root, layerfs.Attrs{Location: location}))
		require.NoError(t, err, location)
		assert.Equal(t, want, exists, location)
	}

	// The unallocated gap has no /pN name but is reachable by index.
	exists, err := fs.FileEntryExistsByPathSpec(partitionSpec(t, root, layerfs.Attrs{PartIndex: util.Pointer(1)}))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPartitionFileSystem_GetFileEntryNotFound(t *testing.T) {
	t.Parallel()

	fs, root := newTestPartitionFS(t)
	entry, err := fs.GetFileEntryByPathSpec(partitionSpec(t, root, layerfs.Attrs{Location: "/p3"}))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPartitionFileEntry_Stat(t *testing.T) {
	t.Parallel()

	fs, root := newTestPartitionFS(t)

	p2, err := fs.GetFileEntryByPathSpec(partitionSpec(t, root, layerfs.Attrs{Location: "/p2"}))
	require.NoError(t, err)
	stat, err := p2.Stat()
	require.NoError(t, err)
	assert.Equal(t, layerfs.EntryTypeFile, stat.Type)
	assert.True(t, stat.IsAllocated)
	require.NotNil(t, stat.Size)
	assert.Equal(t, 4*testSectorSize, *stat.Size)

	gap, err := fs.GetFileEntryByPathSpec(partitionSpec(t, root, layerfs.Attrs{PartIndex: util.Pointer(1)}))
	require.NoError(t, err)
	stat, err = gap.Stat()
	require.NoError(t, err)
	assert.False(t, stat.IsAllocated)
	require.NotNil(t, stat.Size)
	assert.Equal(t, 2*testSectorSize, *stat.Size)
}

func TestPartitionFileEntry_ReadSection(t *testing.T) {
	t.Parallel()

	fs, root := newTestPartitionFS(t)
	entry, err := fs.GetFileEntryByPathSpec(partitionSpec(t, root, layerfs.Attrs{Location: "/p2"}))
	require.NoError(t, err)

	obj, err := entry.GetFileObject()
	require.NoError(t, err)
	size, err := obj.Size()
	require.NoError(t, err)
	assert.Equal(t, 4*testSectorSize, size)

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Len(t, data, int(4*testSectorSize))
	// /p2 spans sectors 4 through 7 of the physical stream.
	assert.Equal(t, byte(4), data[0])
	assert.Equal(t, byte(7), data[len(data)-1])

	// Seeking inside the section never leaks bytes of other partitions.
	_, err = obj.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	last := make([]byte, 8)
	n, err := obj.Read(last)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(7), last[0])
}

func TestFindVolumeRecord_Precedence(t *testing.T) {
	t.Parallel()

	volume := testVolume()
	parent := layerfs.NewOSPathSpec("/tmp/disk.raw")

	byOffset, err := layerfs.NewPathSpec(layerfs.TypePartition, parent, layerfs.Attrs{
		StartOffset: util.Pointer(4 * testSectorSize),
	})
	require.NoError(t, err)
	record, err := findVolumeRecord(volume, byOffset)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(4), *record.StartSector)

	// The structural index takes precedence over the location.
	mixed, err := layerfs.NewPathSpec(layerfs.TypePartition, parent, layerfs.Attrs{
		Location:  "/p1",
		PartIndex: util.Pointer(2),
	})
	require.NoError(t, err)
	record, err = findVolumeRecord(volume, mixed)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(4), *record.StartSector)

	// Locations only address allocated records.
	unallocated, err := layerfs.NewPathSpec(layerfs.TypePartition, parent, layerfs.Attrs{Location: "/p9"})
	require.NoError(t, err)
	record, err = findVolumeRecord(volume, unallocated)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestPartitionFileEntry_MissingRecordIsBackendFault(t *testing.T) {
	t.Parallel()

	fs, root := newTestPartitionFS(t)
	entry := &partitionFileEntry{
		fs:    fs,
		spec:  partitionSpec(t, root, layerfs.Attrs{PartIndex: util.Pointer(99)}),
		state: layerfs.EntryStateConcrete,
	}

	_, err := entry.Stat()
	assert.ErrorIs(t, err, layerfs.ErrBackendInvariant)
}

func TestRegisterPartition_ResolvesThroughEngine(t *testing.T) {
	t.Parallel()

	diskPath := filepath.Join(t.TempDir(), "disk.raw")
	require.NoError(t, os.WriteFile(diskPath, testDiskBytes(), 0o644))

	reg := resolver.NewRegistry()
	RegisterOS(reg)
	RegisterPartition(reg, func(parent layerfs.FileObject) (VolumeSystem, error) {
		return testVolume(), nil
	})

	r := resolver.New(reg)
	rc := resolver.NewContext(nil)

	parent := layerfs.NewOSPathSpec(diskPath)
	p1, err := layerfs.NewPathSpec(layerfs.TypePartition, parent, layerfs.Attrs{Location: "/p1"})
	require.NoError(t, err)

	obj, err := r.OpenFileObject(rc, p1)
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Len(t, data, int(2*testSectorSize))
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(1), data[len(data)-1])

	require.NoError(t, rc.ReleaseFileObject(p1))
	assert.True(t, rc.Empty())
}
