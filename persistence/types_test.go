package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimestampBounds(t *testing.T) {
	var ts, err = NewTimestamp(uint64(MaxTimestamp))
	require.NoError(t, err)
	require.Equal(t, MaxTimestamp, ts)

	_, err = NewTimestamp(uint64(MaxTimestamp) + 1)
	require.True(t, IsValidation(err))
	require.Error(t, Timestamp(1<<63).Validate())

	_, err = MaxTimestamp.Succ()
	require.EqualError(t, err, "invalid Timestamp: no successor of MaxTimestamp")
	_, err = MinTimestamp.Pred()
	require.EqualError(t, err, "invalid Timestamp: no predecessor of MinTimestamp")

	next, err := Timestamp(41).Succ()
	require.NoError(t, err)
	require.Equal(t, Timestamp(42), next)
	prev, err := next.Pred()
	require.NoError(t, err)
	require.Equal(t, "41", prev.String())
}

func TestIDsFromBytes(t *testing.T) {
	var id = NewInternalID()
	var out, err = InternalIDFromBytes(id[:])
	require.NoError(t, err)
	require.Equal(t, id, out)

	_, err = InternalIDFromBytes(id[:15])
	require.EqualError(t, err, "invalid InternalID: expected 16 bytes (got 15)")
	_, err = TabletIDFromBytes(nil)
	require.EqualError(t, err, "invalid TabletID: expected 16 bytes (got 0)")
	_, err = IndexIDFromBytes(make([]byte, 17))
	require.EqualError(t, err, "invalid IndexID: expected 16 bytes (got 17)")
}

func TestDocumentIDOrdering(t *testing.T) {
	var (
		t1 = TabletID{0x01}
		t2 = TabletID{0x02}
		a  = NewDocumentID(t1, InternalID{0xff})
		b  = NewDocumentID(t2, InternalID{0x00})
		c  = NewDocumentID(t2, InternalID{0x01})
	)
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, -1, b.Compare(c))
	require.Equal(t, 1, c.Compare(a))
	require.Equal(t, 0, c.Compare(c))

	require.Equal(t, -1, MinInternalID.Compare(MaxInternalID))
	require.Equal(t, "01000000000000000000000000000000/ff000000000000000000000000000000", a.String())
}

func TestTimestampRange(t *testing.T) {
	var r, err = NewTimestampRange(5, 10)
	require.NoError(t, err)
	require.True(t, r.Contains(5))
	require.True(t, r.Contains(10))
	require.False(t, r.Contains(4))
	require.False(t, r.Contains(11))

	_, err = NewTimestampRange(10, 5)
	require.EqualError(t, err, "invalid TimestampRange: min 10 > max 5")
	_, err = NewTimestampRange(0, MaxTimestamp+1)
	require.Error(t, err)

	require.NoError(t, AllTimestamps().Validate())
	require.True(t, AllTimestamps().Contains(MaxTimestamp))
}

func TestParseOrderAndModes(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Order
	}{{"asc", Ascending}, {"ascending", Ascending}, {"desc", Descending}, {"descending", Descending}} {
		var o, err = ParseOrder(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.out, o)
	}
	var _, err = ParseOrder("sideways")
	require.True(t, IsValidation(err))
	require.Equal(t, "desc", Descending.String())

	for m := CheckpointPassive; m <= CheckpointTruncate; m++ {
		var out, err = ParseCheckpointMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, out)
	}
	_, err = ParseCheckpointMode("passive")
	require.True(t, IsValidation(err))
	require.Equal(t, "CheckpointMode(9)", CheckpointMode(9).String())
}

func TestCheckpointResultPagesRemaining(t *testing.T) {
	require.Equal(t, int64(0), CheckpointResult{LogPages: -1, CheckpointedPages: -1}.PagesRemaining())
	require.Equal(t, int64(0), CheckpointResult{}.PagesRemaining())
	require.Equal(t, int64(3), CheckpointResult{LogPages: 10, CheckpointedPages: 7}.PagesRemaining())
	require.Equal(t, int64(0), CheckpointResult{LogPages: 10, CheckpointedPages: 10}.PagesRemaining())
}
