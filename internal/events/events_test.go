package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-daddy-api-server/internal/logger"
)

type failing struct{ calls int }

func (f *failing) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	bad := &failing{}
	rec := NewRecorder(4)
	f := NewFanout(logger.Discard(), bad, rec)

	require.NoError(t, f.Publish(context.Background(), Event{Type: CheckpointRecorded, ShipmentID: "SHP-1"}))

	assert.Equal(t, 1, bad.calls)
	got := rec.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "SHP-1", got[0].ShipmentID)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	rec := NewRecorder(1)
	_ = rec.Publish(context.Background(), Event{ShipmentID: "a"})
	_ = rec.Publish(context.Background(), Event{ShipmentID: "b"})
	got := rec.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ShipmentID)
	assert.Empty(t, rec.Drain())
}
