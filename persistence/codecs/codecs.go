// Package codecs compresses the stored payloads of document values.
package codecs

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Codec is a compression codec of stored payloads. Its numeric value is
// persisted alongside each payload, and must not change.
type Codec int

const (
	// None stores payloads as-is.
	None Codec = 0
	// Snappy uses block-format snappy compression.
	Snappy Codec = 1
	// Zstandard uses zstd compression.
	Zstandard Codec = 2
	// Gzip uses gzip compression.
	Gzip Codec = 3
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstandard:
		return "zstandard"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("Codec(%d)", int(c))
	}
}

// ParseCodec parses a Codec from its String form. The empty string is None.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "zstd", "zstandard":
		return Zstandard, nil
	case "gzip":
		return Gzip, nil
	default:
		return 0, errors.Errorf("unsupported codec %q", s)
	}
}

// Validate returns an error if the Codec is unknown.
func (c Codec) Validate() error {
	if c < None || c > Gzip {
		return errors.Errorf("unsupported codec %s", c)
	}
	return nil
}

// Encode returns |b| compressed with the Codec.
func (c Codec) Encode(b []byte) ([]byte, error) {
	switch c {
	case None:
		return b, nil
	case Snappy:
		return snappy.Encode(nil, b), nil
	case Zstandard:
		return zstdEncoder().EncodeAll(b, nil), nil
	case Gzip:
		var buf bytes.Buffer
		var w = gzip.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		} else if err = w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.Errorf("unsupported codec %s", c)
	}
}

// Decode returns |b| decompressed with the Codec.
func (c Codec) Decode(b []byte) ([]byte, error) {
	switch c {
	case None:
		return b, nil
	case Snappy:
		if n, err := snappy.DecodedLen(b); err != nil {
			return nil, err
		} else if n > maxDecodedSize {
			return nil, errDecodedSize(int64(n))
		}
		return snappy.Decode(nil, b)
	case Zstandard:
		return zstdDecoder().DecodeAll(b, nil)
	case Gzip:
		var r, err = gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()

		out, err := ioutil.ReadAll(io.LimitReader(r, maxDecodedSize+1))
		if err != nil {
			return nil, err
		} else if len(out) > maxDecodedSize {
			return nil, errDecodedSize(int64(len(out)))
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported codec %s", c)
	}
}

// maxDecodedSize bounds the output of decompression.
const maxDecodedSize = 64 << 20

func errDecodedSize(n int64) error {
	return errors.Errorf("decoded size %d exceeds maximum %d", n, maxDecodedSize)
}

// zstd encoders and decoders are safe for concurrent use of their
// EncodeAll and DecodeAll methods, and are costly to build.
var zstdState struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func initZstd() {
	var err error
	if zstdState.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(err) // Only fails with invalid options.
	}
	if zstdState.dec, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize)); err != nil {
		panic(err)
	}
}

func zstdEncoder() *zstd.Encoder {
	zstdState.once.Do(initZstd)
	return zstdState.enc
}

func zstdDecoder() *zstd.Decoder {
	zstdState.once.Do(initZstd)
	return zstdState.dec
}
