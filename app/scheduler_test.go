package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_StartLogsOnce(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	s, err := NewScheduler(newSweep(f, nil, nil), "@hourly", zerolog.New(&buf))
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "sweep scheduler started"), out)
	assert.Contains(t, out, `"schedule":"@hourly"`)
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := NewScheduler(newSweep(f, nil, nil), "every tuesday", zerolog.Nop())
	assert.ErrorContains(t, err, "invalid sweep schedule")
}
