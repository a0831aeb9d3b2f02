package pools

import "sync"

// BytePool is a tiered byte slice pool, one sync.Pool per size class
type BytePool struct {
	pools []*sync.Pool
	sizes []int
}

// Size classes used by the server
const (
	// ChunkSize is the buffered transmission chunk
	ChunkSize = 4096
)

// NewBytePoolWithSizes creates a byte pool with the given ascending size tiers
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a slice of length size backed by the smallest tier that fits.
// Sizes above the largest tier are allocated directly.
func (bp *BytePool) Get(size int) []byte {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the tier matching its capacity; others are dropped.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

var chunkPool = NewBytePoolWithSizes([]int{ChunkSize})

// GetChunk returns a ChunkSize buffer for buffered file transmission
func GetChunk() []byte {
	return chunkPool.Get(ChunkSize)
}

// PutChunk returns a buffer obtained from GetChunk
func PutChunk(buf []byte) {
	chunkPool.Put(buf)
}
