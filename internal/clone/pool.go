package clone

import "sync"

// BufferPool hands out byte slices bucketed by power-of-two capacity.
type BufferPool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

var defaultPool = NewBufferPool()

func NewBufferPool() *BufferPool {
	return &BufferPool{pools: make(map[int]*sync.Pool)}
}

// GetBuffer returns a slice of exactly size bytes from the shared pool.
func GetBuffer(size int) []byte { return defaultPool.Get(size) }

// PutBuffer returns buf to the shared pool.
func PutBuffer(buf []byte) { defaultPool.Put(buf) }

func (bp *BufferPool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	poolSize := bucketSize(size)

	bp.mu.RLock()
	pool, ok := bp.pools[poolSize]
	bp.mu.RUnlock()

	if !ok {
		bp.mu.Lock()
		pool, ok = bp.pools[poolSize]
		if !ok {
			pool = &sync.Pool{
				New: func() interface{} {
					return make([]byte, poolSize)
				},
			}
			bp.pools[poolSize] = pool
		}
		bp.mu.Unlock()
	}

	buf := pool.Get().([]byte)
	return buf[:size]
}

// Put zeroes buf before pooling it; cloned device data must not leak into
// later users of the buffer.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	full := buf[:cap(buf)]
	poolSize := bucketSize(len(full))
	if poolSize != len(full) {
		return
	}

	bp.mu.RLock()
	pool, ok := bp.pools[poolSize]
	bp.mu.RUnlock()
	if !ok {
		return
	}

	clear(full)
	pool.Put(full)
}

func bucketSize(size int) int {
	for _, s := range []int{4096, 65536, 1 << 20, 4 << 20, 16 << 20, 64 << 20} {
		if size <= s {
			return s
		}
	}
	// Round up to 4 KiB.
	return ((size + 4095) / 4096) * 4096
}
