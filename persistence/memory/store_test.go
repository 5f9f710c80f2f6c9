package memory

import (
	"bytes"
	"context"
	"testing"

	"go.gazette.dev/docstore/persistence"
	pt "go.gazette.dev/docstore/persistence/persistencetest"
	gc "gopkg.in/check.v1"
)

func TestConformance(t *testing.T) {
	pt.Run(t, pt.Harness{
		New: func(*testing.T) persistence.Persistence { return New() },
	})
}

type StoreSuite struct{}

func (s *StoreSuite) TestDocumentKeysOrderByTimestampThenID(c *gc.C) {
	var tablet = persistence.NewTabletID()
	var lo = persistence.NewDocumentID(tablet, pt.ID(0x01))
	var hi = persistence.NewDocumentID(tablet, pt.ID(0xfe))

	c.Check(bytes.Compare(docKey(1, hi), docKey(2, lo)) < 0, gc.Equals, true)
	c.Check(bytes.Compare(docKey(2, lo), docKey(2, hi)) < 0, gc.Equals, true)
	c.Check(bytes.Compare(chainKey(lo, 9), chainKey(hi, 1)) < 0, gc.Equals, true)
	c.Check(bytes.HasPrefix(chainKey(lo, 9), chainPrefix(lo)), gc.Equals, true)
}

func (s *StoreSuite) TestIndexKeysOrderVersionsNewestFirst(c *gc.C) {
	var index = persistence.NewIndexID()
	var id = persistence.NewDocumentID(persistence.NewTabletID(), pt.ID(1))

	var a5 = persistence.NewIndexEntry(index, []byte("a"), 5, &id, false)
	var a9 = persistence.NewIndexEntry(index, []byte("a"), 9, &id, false)
	var ab1 = persistence.NewIndexEntry(index, []byte("a\x00"), 1, &id, false)

	c.Check(bytes.Compare(indexKey(a9), indexKey(a5)) < 0, gc.Equals, true)
	c.Check(bytes.Compare(indexKey(a5), indexKey(ab1)) < 0, gc.Equals, true)
	c.Check(indexKey(a5)[:len(indexKey(a5))-tsLen], gc.DeepEquals, indexIdentity(a5))
}

func (s *StoreSuite) TestStreamsReadSnapshots(c *gc.C) {
	var ctx = context.Background()
	var store = New()
	var tablet = persistence.NewTabletID()

	var write = func(i byte) {
		var doc, err = persistence.NewResolvedDocument(tablet, map[string]byte{"i": i})
		c.Assert(err, gc.IsNil)
		c.Assert(store.Write(ctx, []persistence.DocumentLogEntry{{
			Ts:    persistence.Timestamp(i),
			ID:    persistence.NewDocumentID(tablet, pt.ID(i)),
			Value: doc,
		}}, nil, persistence.ConflictStrategyError), gc.IsNil)
	}
	write(1)
	write(2)

	var stream = store.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Descending, 1, nil)
	write(3)

	var out, err = stream.Collect()
	c.Assert(err, gc.IsNil)
	c.Check(out, gc.HasLen, 2)
	c.Check(out[0].Ts, gc.Equals, persistence.Timestamp(2))

	// Closing the Store doesn't disturb open streams.
	stream = store.Reader().LoadDocuments(ctx, persistence.AllTimestamps(), persistence.Ascending, 0, nil)
	c.Assert(store.Close(), gc.IsNil)

	out, err = stream.Collect()
	c.Assert(err, gc.IsNil)
	c.Check(out, gc.HasLen, 3)
}

func (s *StoreSuite) TestCancelledContextFailsStream(c *gc.C) {
	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var _, err = New().Reader().LoadDocuments(ctx, persistence.AllTimestamps(),
		persistence.Ascending, 0, nil).Collect()
	c.Check(err, gc.Equals, context.Canceled)
}

var _ = gc.Suite(&StoreSuite{})

func Test(t *testing.T) { gc.TestingT(t) }
