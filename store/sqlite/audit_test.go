package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goTrust/internal/audit"
)

func openTestLog(t *testing.T) *AuditLog {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAuditLog_EmitAndList(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []audit.Event{
		{ID: "e1", Timestamp: base, ActorID: "u1", Action: "auth.login", Outcome: "success"},
		{ID: "e2", Timestamp: base.Add(time.Minute), ActorID: "u1", Action: "auth.login", Outcome: "failure",
			Severity: audit.SeverityWarning, Context: map[string]string{"reason": "bad_password"}},
		{ID: "e3", Timestamp: base.Add(2 * time.Minute), ActorID: "u2", Action: "session.hijack", Outcome: "failure",
			Severity: audit.SeverityCritical},
		{Action: "biometric.match", Outcome: "success"},
	}
	for _, e := range events {
		require.NoError(t, l.Emit(ctx, e))
	}

	got, err := l.List(ctx, Filter{ActorID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID, "newest first")
	assert.Equal(t, audit.SeverityWarning, got[0].Severity)
	assert.Equal(t, "bad_password", got[0].Context["reason"])
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Minute)))
	assert.Equal(t, audit.SeverityInfo, got[1].Severity, "empty severity defaults to info")

	got, err = l.List(ctx, Filter{Severity: audit.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].ActorID)

	got, err = l.List(ctx, Filter{Action: "biometric.match"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID, "missing id is generated")
	assert.Empty(t, got[0].ActorID)
}

func TestAuditLog_Pagination(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Emit(ctx, audit.Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			ActorID:   "u1",
			Action:    "session.validate",
			Outcome:   "success",
		}))
	}

	page, err := l.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Timestamp.Equal(base.Add(3*time.Second)))

	page, err = l.List(ctx, Filter{Since: base.Add(3 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestAuditLog_Prune(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, l.Emit(ctx, audit.Event{Timestamp: base, Action: "a", Outcome: "success"}))
	require.NoError(t, l.Emit(ctx, audit.Event{Timestamp: base.Add(time.Hour), Action: "b", Outcome: "success"}))

	n, err := l.Prune(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rest, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "b", rest[0].Action)
}

func TestAuditLog_ServesAsDispatcherSink(t *testing.T) {
	l := openTestLog(t)
	d := audit.NewDispatcher(audit.Config{BufferSize: 8}, l)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Emit(context.Background(), audit.Event{Action: "auth.login", Outcome: "success"}))
	}
	d.Close()

	got, err := l.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestAuditLog_SubSecondOrdering(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, l.Emit(ctx, audit.Event{ID: "whole", Timestamp: base, Action: "a", Outcome: "success"}))
	require.NoError(t, l.Emit(ctx, audit.Event{ID: "half", Timestamp: base.Add(500 * time.Millisecond), Action: "a", Outcome: "success"}))

	got, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "half", got[0].ID)
}
