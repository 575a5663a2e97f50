package flows

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/goTrust/biometric"
	"github.com/MrEthical07/goTrust/store"
)

// Comparison is the result of matching a sample against one template. Err is
// set when the template could not be opened; such templates are excluded
// from the decision.
type Comparison struct {
	TemplateID string
	Distance   float64
	Err        error
}

// CompareDeps captures template comparison dependencies.
type CompareDeps struct {
	Open func(t store.Template) ([]float64, error)
	// Parallelism bounds concurrent decrypt+distance work; zero selects
	// GOMAXPROCS.
	Parallelism int
}

// CompareTemplates decrypts every template and computes its distance to
// sample in parallel. Per-template failures are reported in the result, not
// as the returned error; only cancellation aborts the whole comparison.
func CompareTemplates(ctx context.Context, templates []store.Template, sample []float64, deps CompareDeps) ([]Comparison, error) {
	out := make([]Comparison, len(templates))

	limit := deps.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range templates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := templates[i]
			out[i] = Comparison{TemplateID: t.ID, Distance: math.Inf(1)}

			vec, err := deps.Open(t)
			if err != nil {
				out[i].Err = err
				return nil
			}
			d, err := biometric.Distance(vec, sample)
			if err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Distance = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MatchDecision is the verdict over a set of comparisons.
type MatchDecision struct {
	Matched bool
	// Best indexes the closest compared template, -1 when none compared.
	Best int
	// Compared and Excluded index into the comparisons.
	Compared []int
	Excluded []int
}

// Match policies.
const (
	PolicyAny = "any"
	PolicyAll = "all"
)

// Decide applies tolerance under policy. With "any" one template within
// tolerance suffices; with "all" every compared template must be within it.
func Decide(comps []Comparison, tolerance float64, policy string) MatchDecision {
	dec := MatchDecision{Best: -1}
	within := 0
	for i, c := range comps {
		if c.Err != nil {
			dec.Excluded = append(dec.Excluded, i)
			continue
		}
		dec.Compared = append(dec.Compared, i)
		if c.Distance <= tolerance {
			within++
		}
		if dec.Best < 0 || c.Distance < comps[dec.Best].Distance {
			dec.Best = i
		}
	}

	switch policy {
	case PolicyAll:
		dec.Matched = len(dec.Compared) > 0 && within == len(dec.Compared)
	default:
		dec.Matched = within > 0
	}
	return dec
}

// CommitDeps captures the counter writes and the audit record of a match
// attempt.
type CommitDeps struct {
	RecordSuccess func(ctx context.Context, templateID string) (store.Template, error)
	RecordFailure func(ctx context.Context, templateID string) (store.Template, error)
	// Audit records the attempt with its final verdict; writeErr is non-nil
	// when some counter writes did not land.
	Audit func(ctx context.Context, matched bool, updated []store.Template, writeErr error) error
	// OnAuditLost is told about counters that landed without their audit
	// record.
	OnAuditLost func(updated []store.Template, err error)
	Timeout     time.Duration
}

// CommitResult is what a match commit landed. Matched differs from the
// decision when the store refused the success write because the template
// left the required state after it was read; Revoked is set in that case.
type CommitResult struct {
	Updated []store.Template
	Matched bool
	Revoked bool
}

var ErrCommitAborted = errors.New("match commit aborted before start")

// RunMatchCommit lands the counter updates for a decided attempt and its
// audit record as one unit. It starts only while ctx is live; once started
// it is detached from ctx cancellation and bounded by deps.Timeout, so a
// caller disconnecting mid-way cannot leave counters without their record.
func RunMatchCommit(ctx context.Context, comps []Comparison, dec MatchDecision, deps CommitDeps) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, fmt.Errorf("%w: %v", ErrCommitAborted, err)
	}
	cctx, cancel := context.WithoutCancel(ctx), context.CancelFunc(func() {})
	if deps.Timeout > 0 {
		cctx, cancel = context.WithTimeout(cctx, deps.Timeout)
	}
	defer cancel()

	res := CommitResult{Matched: dec.Matched}
	var writeErr error
	if dec.Matched {
		id := comps[dec.Best].TemplateID
		t, err := deps.RecordSuccess(cctx, id)
		if errors.Is(err, store.ErrTemplateState) {
			// Locked by a concurrent failure: the attempt is charged as one.
			res.Matched, res.Revoked = false, true
			t, err = deps.RecordFailure(cctx, id)
		}
		if err != nil {
			writeErr = err
		} else {
			res.Updated = append(res.Updated, t)
		}
	} else {
		// Failure counters are per template and serialized by the store;
		// each compared template is charged exactly once.
		for _, i := range dec.Compared {
			t, err := deps.RecordFailure(cctx, comps[i].TemplateID)
			if err != nil {
				writeErr = errors.Join(writeErr, err)
				continue
			}
			res.Updated = append(res.Updated, t)
		}
	}

	if err := deps.Audit(cctx, res.Matched, res.Updated, writeErr); err != nil {
		if len(res.Updated) > 0 && deps.OnAuditLost != nil {
			deps.OnAuditLost(res.Updated, err)
		}
		return res, errors.Join(writeErr, err)
	}
	return res, writeErr
}
