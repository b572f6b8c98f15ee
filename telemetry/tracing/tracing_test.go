package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilTracerIsNoop(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartLoadHeavy(context.Background(), 7)
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	assert.False(t, span.IsRecording())
	EndLoadHeavy(span, time.Millisecond, nil)
}

func TestStartLoadHeavyRecordsOutcome(t *testing.T) {
	tr := New("spindle-test")
	_, span := tr.StartLoadHeavy(context.Background(), 42)
	require.NotNil(t, span)
	assert.True(t, span.IsRecording())
	EndLoadHeavy(span, 5*time.Millisecond, nil)
}

func TestStartLoadHeavyRecordsError(t *testing.T) {
	tr := New("spindle-test")
	_, span := tr.StartLoadHeavy(context.Background(), 42)
	EndLoadHeavy(span, time.Millisecond, errors.New("load_heavy: artifact missing"))
}

func TestStartRescheduleSpanParenting(t *testing.T) {
	tr := New("spindle-test")
	ctx, parent := tr.StartLoadHeavy(context.Background(), 1)
	ctx, child := tr.StartReschedule(ctx)
	require.NotNil(t, ctx)
	assert.True(t, parent.SpanContext().IsValid())
	assert.True(t, child.SpanContext().IsValid())
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	EndReschedule(child, 2, 3, false)
	EndLoadHeavy(parent, time.Millisecond, nil)
}
