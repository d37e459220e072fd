package tracing_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := tracing.StartSpan(context.Background(), "search", "req-1")
	_, child := tracing.StartChildSpan(ctx, "term_search")
	child.SetAttr("terms", 2)
	child.End()
	root.End()

	assert.Same(t, root, tracing.SpanFromContext(ctx))
	got := root.Child("term_search")
	require.NotNil(t, got)
	assert.Equal(t, "req-1", got.TraceID)
	v, ok := got.Attr("terms")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Nil(t, root.Child("missing"))
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := tracing.StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, tracing.SpanFromContext(ctx))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := tracing.StartSpan(context.Background(), "search", "req-2")
	_, child := tracing.StartChildSpan(ctx, "object_search")
	child.End()
	root.End()
	root.Log(logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=search")
	assert.Contains(t, lines[1], "span=object_search")
	assert.Contains(t, lines[1], "depth=1")
	assert.Contains(t, lines[1], "trace_id=req-2")
}
