package codecs

import (
	"bytes"
	"testing"

	gc "gopkg.in/check.v1"
)

type CodecsSuite struct{}

func (s *CodecsSuite) TestRoundTripOfEachCodec(c *gc.C) {
	var payload = bytes.Repeat([]byte(`{"field":"a repetitive document value"}`), 64)

	for _, codec := range []Codec{None, Snappy, Zstandard, Gzip} {
		var enc, err = codec.Encode(payload)
		c.Assert(err, gc.IsNil)

		if codec != None {
			c.Check(len(enc) < len(payload), gc.Equals, true)
		}
		dec, err := codec.Decode(enc)
		c.Assert(err, gc.IsNil)
		c.Check(dec, gc.DeepEquals, payload)
	}
}

func (s *CodecsSuite) TestParsing(c *gc.C) {
	for _, tc := range []struct {
		in     string
		expect Codec
	}{
		{"", None},
		{"none", None},
		{"SNAPPY", Snappy},
		{"zstd", Zstandard},
		{"zstandard", Zstandard},
		{"gzip", Gzip},
	} {
		var codec, err = ParseCodec(tc.in)
		c.Check(err, gc.IsNil)
		c.Check(codec, gc.Equals, tc.expect)
	}

	var _, err = ParseCodec("lz4")
	c.Check(err, gc.ErrorMatches, `unsupported codec "lz4"`)
}

func (s *CodecsSuite) TestUnknownCodec(c *gc.C) {
	var codec = Codec(42)
	c.Check(codec.Validate(), gc.ErrorMatches, `unsupported codec Codec\(42\)`)

	var _, err = codec.Encode([]byte("x"))
	c.Check(err, gc.NotNil)
	_, err = codec.Decode([]byte("x"))
	c.Check(err, gc.NotNil)
}

func (s *CodecsSuite) TestCorruptInputIsAnError(c *gc.C) {
	for _, codec := range []Codec{Snappy, Zstandard, Gzip} {
		var _, err = codec.Decode([]byte("not compressed"))
		c.Check(err, gc.NotNil, gc.Commentf("codec %s", codec))
	}
}

func (s *CodecsSuite) TestOversizedPayloadIsRejected(c *gc.C) {
	var payload = make([]byte, maxDecodedSize+1)

	for _, codec := range []Codec{Snappy, Zstandard, Gzip} {
		var enc, err = codec.Encode(payload)
		c.Assert(err, gc.IsNil)

		_, err = codec.Decode(enc)
		c.Check(err, gc.NotNil, gc.Commentf("codec %s", codec))
	}

	// A payload of exactly the maximum size decodes.
	var enc, err = Gzip.Encode(payload[:maxDecodedSize])
	c.Assert(err, gc.IsNil)
	dec, err := Gzip.Decode(enc)
	c.Check(err, gc.IsNil)
	c.Check(dec, gc.HasLen, maxDecodedSize)
}

var _ = gc.Suite(&CodecsSuite{})

func Test(t *testing.T) { gc.TestingT(t) }
