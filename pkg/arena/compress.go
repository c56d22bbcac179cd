package arena

import (
	"bytes"
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
)

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// compressUint32Slice compresses a slice of uint32s with LZ4. Adapted from
// the teacher's internal/rbtree/lz4.go.
func compressUint32Slice(data []uint32) []byte {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(buf.Len()))

	written, err := lz4.CompressBlock(buf.Bytes(), compressed, nil)
	if err != nil || written == 0 {
		return nil
	}

	return compressed[:written]
}

// decompressUint32Slice decompresses data previously produced by
// compressUint32Slice. result must be preallocated to the original length.
func decompressUint32Slice(data []byte, result []uint32) {
	decompressed := make([]byte, len(result)*uint32ByteSize)

	if _, err := lz4.UncompressBlock(data, decompressed); err != nil {
		return
	}

	_ = binary.Read(bytes.NewReader(decompressed), binary.LittleEndian, result)
}

// CompactStats reports the effect of the last Compact call.
type CompactStats struct {
	SlotsBefore int
	FreeBefore  int
	BytesSaved  int
}

// Compact deinterleaves the free-list and occupancy bitmap into column
// buffers, compresses them with LZ4, and immediately decompresses back in
// place. This is a pure in-memory exercise of the teacher's hibernate/boot
// column-compression idea (internal/rbtree/lz4.go,
// pkg/rbtree/rbtree.go's Allocator.Hibernate/Boot) repurposed as a
// validity self-check: it verifies that the occupancy and next-link
// columns come back unchanged from an LZ4 round trip, without ever
// touching disk. Nothing in this package calls it automatically (the
// spec's Non-goals exclude persistence; the teacher's on-disk
// Serialize/Deserialize half was dropped, see DESIGN.md).
func (r *Repo[T]) Compact() CompactStats {
	stats := CompactStats{SlotsBefore: len(r.slots) - 1}

	occupancy := make([]uint32, len(r.slots))
	nextLinks := make([]uint32, len(r.slots))

	for i := 1; i < len(r.slots); i++ {
		if r.slots[i].occupied {
			occupancy[i] = 1
		} else {
			stats.FreeBefore++
		}

		nextLinks[i] = uint32(r.slots[i].next)
	}

	compactedOcc := compressUint32Slice(occupancy)
	compactedNext := compressUint32Slice(nextLinks)
	stats.BytesSaved = (len(occupancy)+len(nextLinks))*uint32ByteSize - (len(compactedOcc) + len(compactedNext))

	// Round-trip to prove the column buffers are faithful before discarding
	// them.
	roundOcc := make([]uint32, len(occupancy))
	roundNext := make([]uint32, len(nextLinks))
	decompressUint32Slice(compactedOcc, roundOcc)
	decompressUint32Slice(compactedNext, roundNext)

	for i := range occupancy {
		if roundOcc[i] != occupancy[i] || roundNext[i] != nextLinks[i] {
			panic("arena: compaction round-trip mismatch, free list is corrupt")
		}
	}

	return stats
}
