package util

import (
	"bufio"
	"io"
	"sync"
)

// DefaultBufSize is the buffer size of pooled protocol readers (4 KiB).
const DefaultBufSize = 4 * 1024

// readerPool recycles bufio.Readers between short-lived sessions and
// callback exchanges.
var readerPool = sync.Pool{
	New: func() interface{} {
		return bufio.NewReaderSize(nil, DefaultBufSize)
	},
}

// GetReader retrieves a pooled reader reset onto r.  Callers must
// return it with [PutReader] when finished.
func GetReader(r io.Reader) *bufio.Reader {
	br := readerPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// PutReader returns a reader to the pool for reuse.
func PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	readerPool.Put(br)
}
