package flows

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goTrust/store"
	"github.com/MrEthical07/goTrust/store/memory"
)

var errCorrupt = errors.New("corrupt template")

func plainTemplates(vectors map[string][]float64) ([]store.Template, CompareDeps) {
	var ts []store.Template
	for _, id := range []string{"t1", "t2", "t3"} {
		if _, ok := vectors[id]; ok {
			ts = append(ts, store.Template{ID: id, AccountID: "u1", IsVerified: true})
		}
	}
	return ts, CompareDeps{
		Open: func(t store.Template) ([]float64, error) {
			v := vectors[t.ID]
			if v == nil {
				return nil, errCorrupt
			}
			return v, nil
		},
		Parallelism: 2,
	}
}

func TestCompareTemplates_ReportsPerTemplateErrors(t *testing.T) {
	ts, deps := plainTemplates(map[string][]float64{
		"t1": {0, 0, 0},
		"t2": nil,
		"t3": {1, 1},
	})
	comps, err := CompareTemplates(context.Background(), ts, []float64{0, 0, 1}, deps)
	require.NoError(t, err)
	require.Len(t, comps, 3)

	assert.Equal(t, "t1", comps[0].TemplateID)
	assert.InDelta(t, 1.0, comps[0].Distance, 1e-9)
	assert.ErrorIs(t, comps[1].Err, errCorrupt)
	assert.True(t, math.IsInf(comps[1].Distance, 1))
	assert.Error(t, comps[2].Err, "dimension mismatch must be excluded")
}

func TestCompareTemplates_Cancelled(t *testing.T) {
	ts, deps := plainTemplates(map[string][]float64{"t1": {0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CompareTemplates(ctx, ts, []float64{0}, deps)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecide(t *testing.T) {
	comps := []Comparison{
		{TemplateID: "t1", Distance: 0.2},
		{TemplateID: "t2", Distance: 0.9},
		{TemplateID: "t3", Distance: math.Inf(1), Err: errCorrupt},
	}

	anyDec := Decide(comps, 0.6, PolicyAny)
	assert.True(t, anyDec.Matched)
	assert.Equal(t, 0, anyDec.Best)
	assert.Equal(t, []int{0, 1}, anyDec.Compared)
	assert.Equal(t, []int{2}, anyDec.Excluded)

	allDec := Decide(comps, 0.6, PolicyAll)
	assert.False(t, allDec.Matched)

	none := Decide(comps[2:], 0.6, PolicyAll)
	assert.False(t, none.Matched, "all-policy with nothing compared must not match")
	assert.Equal(t, -1, none.Best)
}

type commitFixture struct {
	templates    *memory.Templates
	now          time.Time
	audited      []store.Template
	auditedMatch bool
	lost         []store.Template
	auditErr     error
}

func newCommitFixture(t *testing.T) *commitFixture {
	t.Helper()
	f := &commitFixture{templates: memory.NewTemplates(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, f.templates.CreateTemplate(context.Background(), store.Template{
			ID: id, AccountID: "u1", IsVerified: true, EnrolledAt: f.now,
		}))
	}
	return f
}

func (f *commitFixture) deps() CommitDeps {
	return CommitDeps{
		RecordSuccess: func(ctx context.Context, id string) (store.Template, error) {
			return f.templates.RecordMatchSuccess(ctx, id, f.now)
		},
		RecordFailure: func(ctx context.Context, id string) (store.Template, error) {
			return f.templates.RecordMatchFailure(ctx, id, f.now, 5)
		},
		Audit: func(_ context.Context, matched bool, updated []store.Template, _ error) error {
			f.auditedMatch = matched
			f.audited = updated
			return f.auditErr
		},
		OnAuditLost: func(updated []store.Template, _ error) { f.lost = updated },
		Timeout:     time.Second,
	}
}

func TestRunMatchCommit_FailureChargesEveryComparedTemplate(t *testing.T) {
	f := newCommitFixture(t)
	comps := []Comparison{
		{TemplateID: "t1", Distance: 0.8},
		{TemplateID: "t2", Distance: 0.9},
	}
	dec := Decide(comps, 0.6, PolicyAny)

	res, err := RunMatchCommit(context.Background(), comps, dec, f.deps())
	require.NoError(t, err)
	require.Len(t, res.Updated, 2)
	assert.False(t, res.Matched)
	for _, tpl := range res.Updated {
		assert.Equal(t, 1, tpl.FailedMatches)
	}
	assert.Len(t, f.audited, 2)
}

func TestRunMatchCommit_SuccessTouchesBestOnly(t *testing.T) {
	f := newCommitFixture(t)
	comps := []Comparison{
		{TemplateID: "t1", Distance: 0.5},
		{TemplateID: "t2", Distance: 0.1},
	}
	res, err := RunMatchCommit(context.Background(), comps, Decide(comps, 0.6, PolicyAny), f.deps())
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	assert.True(t, res.Matched)
	assert.True(t, f.auditedMatch)
	assert.Equal(t, "t2", res.Updated[0].ID)
	assert.Equal(t, 1, res.Updated[0].SuccessfulMatches)

	t1, err := f.templates.GetTemplate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, t1.SuccessfulMatches)
}

func TestRunMatchCommit_AbortsOnDeadCaller(t *testing.T) {
	f := newCommitFixture(t)
	comps := []Comparison{{TemplateID: "t1", Distance: 0.9}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunMatchCommit(ctx, comps, Decide(comps, 0.6, PolicyAny), f.deps())
	assert.ErrorIs(t, err, ErrCommitAborted)

	t1, _ := f.templates.GetTemplate(context.Background(), "t1")
	assert.Zero(t, t1.FailedMatches, "no counter may move before the commit starts")
	assert.Nil(t, f.audited)
}

func TestRunMatchCommit_AuditLossReported(t *testing.T) {
	f := newCommitFixture(t)
	f.auditErr = errors.New("sink down")
	comps := []Comparison{{TemplateID: "t1", Distance: 0.9}}

	res, err := RunMatchCommit(context.Background(), comps, Decide(comps, 0.6, PolicyAny), f.deps())
	assert.ErrorIs(t, err, f.auditErr)
	assert.Len(t, res.Updated, 1)
	assert.Equal(t, res.Updated, f.lost)
}

func TestRunMatchCommit_WriteErrorsJoined(t *testing.T) {
	f := newCommitFixture(t)
	comps := []Comparison{
		{TemplateID: "t1", Distance: 0.9},
		{TemplateID: "gone", Distance: 0.9},
	}
	res, err := RunMatchCommit(context.Background(), comps, Decide(comps, 0.6, PolicyAny), f.deps())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, res.Updated, 1)
}

func TestRunMatchCommit_LockedTemplateRevokesMatch(t *testing.T) {
	f := newCommitFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.templates.RecordMatchFailure(ctx, "t1", f.now, 5)
		require.NoError(t, err)
	}
	comps := []Comparison{{TemplateID: "t1", Distance: 0.1}}

	res, err := RunMatchCommit(ctx, comps, Decide(comps, 0.6, PolicyAny), f.deps())
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.True(t, res.Revoked)
	assert.False(t, f.auditedMatch)
	require.Len(t, res.Updated, 1)
	assert.Equal(t, 6, res.Updated[0].FailedMatches)
	assert.Zero(t, res.Updated[0].SuccessfulMatches)
}
