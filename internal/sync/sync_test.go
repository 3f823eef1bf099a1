package syncx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examportal/internal/db"
	syncx "github.com/mind-engage/examportal/internal/sync"
)

type recorder struct {
	got []syncx.Event
	err error
}

func (r *recorder) Append(_ context.Context, e syncx.Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("broker down")}
	m := syncx.Multi{a, nil, b}

	err := m.Append(context.Background(), syncx.Event{Type: syncx.TypeAttemptSubmitted, Key: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

func TestEventRepo_AppendAndSince(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:eventlog_test?mode=memory&cache=shared")
	require.NoError(t, err)
	defer conn.Close()

	repo := syncx.NewEventRepo(conn)
	require.NoError(t, repo.Append(ctx, syncx.Event{Type: syncx.TypeAttemptStarted, Key: "a1", DataJSON: `{"testId":"t1"}`}))
	require.NoError(t, repo.Append(ctx, syncx.Event{Type: syncx.TypeAttemptSubmitted, Key: "a1", DataJSON: `{}`}))

	all, err := repo.Since(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, syncx.TypeAttemptStarted, all[0].Type)
	assert.Equal(t, "local", all[0].SiteID)

	rest, err := repo.Since(ctx, all[0].Offset, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, syncx.TypeAttemptSubmitted, rest[0].Type)
}

func TestPublisher_DisabledWithoutURL(t *testing.T) {
	p, err := syncx.NewPublisher("", "")
	require.NoError(t, err)
	assert.NoError(t, p.Append(context.Background(), syncx.Event{Type: syncx.TypeAttemptStarted}))
	assert.NoError(t, p.Close())
}
