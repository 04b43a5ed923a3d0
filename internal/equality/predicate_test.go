package equality_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cboudereau/gcs-rsync/internal/entry"
	"github.com/cboudereau/gcs-rsync/internal/equality"
	"github.com/cboudereau/gcs-rsync/pkg/crc32c"
)

type stringHandle struct{ s string }

func (h stringHandle) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(h.s)), nil
}

func crcOf(s string) uint32 { return crc32c.Sum([]byte(s)) }

func TestCompareSizeMismatch(t *testing.T) {
	src := &entry.EntryDescriptor{Size: 3}
	dst := &entry.EntryDescriptor{Size: 4}

	v, _, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.NotEqual, v)
}

func TestCompareBothCRC32CAuthoritative(t *testing.T) {
	sum := crcOf("hi")
	src := &entry.EntryDescriptor{Size: 2, CRC32C: &sum}
	dstSum := sum
	dst := &entry.EntryDescriptor{Size: 2, CRC32C: &dstSum}

	v, reason, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.Equal, v)
	require.Equal(t, entry.SkipReasonCRC32CMatch, reason)
}

func TestCompareBothCRC32CDisagreeNeverPromotes(t *testing.T) {
	a, b := crcOf("hi"), crcOf("bye")
	src := &entry.EntryDescriptor{Size: 3, CRC32C: &a}
	dst := &entry.EntryDescriptor{Size: 3, CRC32C: &b}

	v, _, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.NotEqual, v)
}

func TestCompareNeitherCRC32CUsesSizeAndMTimeTolerance(t *testing.T) {
	now := time.Now()
	src := &entry.EntryDescriptor{Size: 5, MTime: now}
	dst := &entry.EntryDescriptor{Size: 5, MTime: now.Add(500 * time.Millisecond)}

	v, reason, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.Equal, v)
	require.Equal(t, entry.SkipReasonSizeMTimeMatch, reason)
}

func TestCompareNeitherCRC32CSrcNewerIsNotEqual(t *testing.T) {
	now := time.Now()
	src := &entry.EntryDescriptor{Size: 5, MTime: now.Add(2 * time.Second)}
	dst := &entry.EntryDescriptor{Size: 5, MTime: now}

	v, _, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.NotEqual, v)
}

func TestCompareOneSidedCRC32CPromotesOnMTimeDisagreement(t *testing.T) {
	sum := crcOf("hi")
	src := &entry.EntryDescriptor{Size: 2, CRC32C: &sum, MTime: time.Now(), Handle: stringHandle{"hi"}}
	dst := &entry.EntryDescriptor{Size: 2, MTime: time.Now().Add(-time.Hour), Handle: stringHandle{"hi"}}

	v, reason, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.Equal, v)
	require.Equal(t, entry.SkipReasonCRC32CMatch, reason)
}

func TestCompareOneSidedCRC32CPromotionMismatch(t *testing.T) {
	sum := crcOf("hi")
	src := &entry.EntryDescriptor{Size: 2, CRC32C: &sum, MTime: time.Now(), Handle: stringHandle{"hi"}}
	dst := &entry.EntryDescriptor{Size: 2, MTime: time.Now().Add(-time.Hour), Handle: stringHandle{"xx"}}

	v, _, err := equality.Compare(context.Background(), src, dst)
	require.NoError(t, err)
	require.Equal(t, equality.NotEqual, v)
}
