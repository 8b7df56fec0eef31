package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)

	key := "student/1_doc.pdf"
	require.NoError(t, s.Put(ctx, key, []byte("%PDF-1.4"), "application/pdf"))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(got))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../b", `a\b`} {
		require.ErrorIs(t, s.Put(context.Background(), key, nil, ""), common.ErrInvalidInput, key)
	}
}

func TestObjectKey(t *testing.T) {
	sid := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	k := ObjectKey(sid, "보고서.PDF", time.UnixMilli(1700000000000))
	assert.True(t, strings.HasPrefix(k, sid.String()+"/1700000000000_"), k)
	assert.True(t, strings.HasSuffix(k, ".pdf"), k)
	assert.NoError(t, validKey(k))
}
