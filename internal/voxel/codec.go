package voxel

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// CompressBound is an upper bound on the deflated size of n input bytes:
// stored blocks add at most 5 bytes per 16 KiB plus the zlib wrapper.
func CompressBound(n int) int {
	return n + (n >> 12) + 64
}

// Codec deflates chunk payloads at best compression and inflates them back.
// It owns a scratch buffer so the steady-state path does not allocate; a
// Codec is not safe for concurrent use.
type Codec struct {
	volume  int
	scratch bytes.Buffer
	zw      *zlib.Writer
}

func NewCodec(chunkVolume int) *Codec {
	c := &Codec{volume: chunkVolume}
	c.scratch.Grow(CompressBound(chunkVolume))
	zw, err := zlib.NewWriterLevel(&c.scratch, zlib.BestCompression)
	if err != nil {
		// Only reachable with an invalid level constant.
		panic(err)
	}
	c.zw = zw
	return c
}

// Compress deflates blocks. The returned slice aliases the codec's scratch
// buffer and is valid until the next Compress call.
func (c *Codec) Compress(blocks []Block) ([]byte, error) {
	if len(blocks) != c.volume {
		return nil, fmt.Errorf("compress: payload is %d bytes, chunk volume is %d", len(blocks), c.volume)
	}
	c.scratch.Reset()
	c.zw.Reset(&c.scratch)
	if _, err := c.zw.Write(blocks); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := c.zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return c.scratch.Bytes(), nil
}

// Decompress inflates src into dst and fails unless it yields exactly one
// chunk volume. A short or long stream means the region file is corrupt.
func (c *Codec) Decompress(src []byte, dst []Block) error {
	if len(dst) != c.volume {
		return fmt.Errorf("decompress: dst is %d bytes, chunk volume is %d", len(dst), c.volume)
	}
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	defer zr.Close()
	if _, err := io.ReadFull(zr, dst); err != nil {
		return fmt.Errorf("decompress: short payload: %w", err)
	}
	var extra [1]byte
	if n, _ := zr.Read(extra[:]); n != 0 {
		return fmt.Errorf("decompress: payload longer than chunk volume %d", c.volume)
	}
	return nil
}
