package stratum

import "sync"

// bufferPool reuses the scan buffer backing the connection's line reader.
var bufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 4096)
	},
}

// getBuffer gets a byte buffer from the pool.
func getBuffer() []byte {
	return bufferPool.Get().([]byte)
}

// putBuffer returns a byte buffer to the pool.
func putBuffer(buf []byte) {
	if buf != nil {
		bufferPool.Put(buf) //nolint:staticcheck // fixed-size slice, no sizing concern
	}
}
