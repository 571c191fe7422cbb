package sample

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Compression selects how sample files are compressed.
type Compression string

const (
	None   Compression = "none"
	Zstd   Compression = "zstd"
	Brotli Compression = "brotli"
)

const baseExt = ".msgpack"

// ParseCompression accepts none, zstd and brotli. An empty string means Zstd.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return Zstd, nil
	case None, Zstd, Brotli:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, zstd or brotli)", s)
	}
}

// Ext is the file extension of samples stored with c.
func (c Compression) Ext() string {
	switch c {
	case Zstd:
		return baseExt + ".zst"
	case Brotli:
		return baseExt + ".br"
	default:
		return baseExt
	}
}

func compressionOf(name string) (Compression, bool) {
	for _, c := range []Compression{Zstd, Brotli, None} {
		if strings.HasSuffix(name, c.Ext()) {
			return c, true
		}
	}
	return "", false
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodec returns process-wide coders; EncodeAll and DecodeAll are safe
// for concurrent use.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// Marshal serializes s with msgpack and compresses it with c.
func Marshal(s *Sample, c Compression) ([]byte, error) {
	raw, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode sample %d: %w", s.Index, err)
	}

	switch c {
	case None, "":
		return raw, nil
	case Zstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case Brotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("compress sample %d: %w", s.Index, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compress sample %d: %w", s.Index, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// Unmarshal reverses Marshal.
func Unmarshal(data []byte, c Compression) (*Sample, error) {
	raw := data
	switch c {
	case None, "":
	case Zstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		if raw, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompress sample: %w", err)
		}
	case Brotli:
		var err error
		if raw, err = io.ReadAll(brotli.NewReader(bytes.NewReader(data))); err != nil {
			return nil, fmt.Errorf("decompress sample: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}

	var s Sample
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode sample: %w", err)
	}
	return &s, nil
}
