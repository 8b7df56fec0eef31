package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
)

type countingReanalyzer struct {
	n atomic.Int64
}

func (c *countingReanalyzer) Reanalyze(context.Context, uuid.UUID, uuid.UUID) (*Reanalyzed, error) {
	c.n.Add(1)
	return &Reanalyzed{}, nil
}

func TestReanalyzeQueueDrainsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := &countingReanalyzer{}
	q := NewReanalyzeQueue(r, testLogger(), WithWorkers(3), WithQueueSize(2), WithJobTimeout(time.Second))
	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue(context.Background(), ReanalyzeJob{FileID: uuid.New()}))
	}
	q.Shutdown(context.Background())
	assert.EqualValues(t, 20, r.n.Load())

	err := q.Enqueue(context.Background(), ReanalyzeJob{FileID: uuid.New()})
	assert.ErrorIs(t, err, ErrQueueClosed)
	q.Shutdown(context.Background())
}

type blockingReanalyzer struct {
	started chan struct{}
	release chan struct{}
	n       atomic.Int64
}

func (b *blockingReanalyzer) Reanalyze(context.Context, uuid.UUID, uuid.UUID) (*Reanalyzed, error) {
	if b.n.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return &Reanalyzed{}, nil
}

func TestShutdownReleasesBlockedEnqueue(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := &blockingReanalyzer{started: make(chan struct{}), release: make(chan struct{})}
	q := NewReanalyzeQueue(r, testLogger(), WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), ReanalyzeJob{FileID: uuid.New()}))
	<-r.started
	require.NoError(t, q.Enqueue(context.Background(), ReanalyzeJob{FileID: uuid.New()}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Enqueue(context.Background(), ReanalyzeJob{FileID: uuid.New()})
	}()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		q.Shutdown(context.Background())
	}()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue on a full queue was not released by shutdown")
	}

	close(r.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not drain")
	}
	assert.EqualValues(t, 2, r.n.Load())
}

func TestQueueReanalyzesStudentRecords(t *testing.T) {
	e := newEnv(t, twoEntries)
	res := e.upload(t)
	require.Equal(t, 2, res.Count)

	ids, err := e.proc.ReanalyzableFiles(context.Background(), e.owner, e.student.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	_, err = e.proc.ReanalyzableFiles(context.Background(), uuid.New(), e.student.ID)
	require.Error(t, err)

	q := NewReanalyzeQueue(e.proc, testLogger(), WithWorkers(1))
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), ReanalyzeJob{ConsultantID: e.owner, FileID: id}))
	}
	q.Shutdown(context.Background())

	// Only the first record carries raw text; the second fails with NO_RAW_TEXT
	// and keeps its status.
	for _, f := range res.Files {
		got, err := e.files.GetByID(context.Background(), f.ID)
		require.NoError(t, err)
		assert.Equal(t, string(constants.StatusComplete), got.AnalysisStatus)
	}
}
