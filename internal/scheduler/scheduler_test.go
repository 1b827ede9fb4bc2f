package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context) error { return nil }

func TestAddCronTask(t *testing.T) {
	s := New(time.Minute)

	require.NoError(t, s.AddCronTask("refresh_post_counts", "0 */5 * * * *", noop))
	require.NoError(t, s.AddCronTask("fix_nonzero_counts", "0 0 * * * *", noop))
	assert.Error(t, s.AddCronTask("broken", "every five minutes", noop))

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "fix_nonzero_counts", tasks[0].Name)
	assert.Equal(t, "refresh_post_counts", tasks[1].Name)
}

func TestAddCronTaskReplacesByName(t *testing.T) {
	s := New(time.Minute)
	require.NoError(t, s.AddCronTask("recover_stale", "0 * * * * *", noop))
	require.NoError(t, s.AddCronTask("recover_stale", "0 0 * * * *", noop))
	assert.Len(t, s.Tasks(), 1)
}

func TestRunTaskAppliesTimeout(t *testing.T) {
	s := New(10 * time.Millisecond)
	var deadline bool
	s.runTask("slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadline = errors.Is(ctx.Err(), context.DeadlineExceeded)
		return ctx.Err()
	})
	assert.True(t, deadline)
}

func TestStartStop(t *testing.T) {
	s := New(time.Minute)
	require.NoError(t, s.AddCronTask("noop", "* * * * * *", noop))
	s.Start()
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
