package goTrust

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goTrust/biometric"
	"github.com/MrEthical07/goTrust/internal/flows"
	"github.com/MrEthical07/goTrust/internal/throttle"
	"github.com/MrEthical07/goTrust/store"
)

// BiometricEnrollment describes an enrolled template without its vector.
type BiometricEnrollment struct {
	ID                string
	Label             string
	State             biometric.State
	SuccessfulMatches int
	FailedMatches     int
	EnrolledAt        time.Time
	LastSuccess       time.Time
	LastFailure       time.Time
}

// EnrollBiometric extracts features from sample, seals them and stores a new
// template awaiting confirmation. The returned template carries only the
// sealed vector.
func (e *Engine) EnrollBiometric(ctx context.Context, accountID string, sample []byte, label string) (*BiometricTemplate, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.cipher == nil {
		return nil, ErrBiometricDisabled
	}
	if accountID == "" {
		return nil, ErrInvalidInput
	}

	sctx, cancel := e.storeCtx(ctx)
	_, err := e.accounts.GetAccountByID(sctx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, e.dependencyError(ctx, "enroll biometric: load account", err)
	}

	features, err := e.extract(ctx, sample)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sealed, integrity, err := e.cipher.Seal(accountID, id, features.Vector)
	if err != nil {
		e.critical(ctx, "biometric template sealing failed", "account_id", accountID, "error", err)
		return nil, ErrBiometricEncryption
	}

	t := store.Template{
		ID:              id,
		AccountID:       accountID,
		EncryptedVector: sealed,
		IntegrityHash:   integrity,
		Label:           label,
		EnrolledAt:      e.now().UTC(),
	}

	if len(features.Preview) > 0 && e.previews != nil {
		t.PreviewKey = previewKey(accountID, id)
		sctx, cancel := e.storeCtx(ctx)
		err := e.previews.PutPreview(sctx, t.PreviewKey, features.Preview)
		cancel()
		if err != nil {
			return nil, e.dependencyError(ctx, "enroll biometric: store preview", err)
		}
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.templates.CreateTemplate(sctx, t)
	cancel()
	if err != nil {
		e.deletePreview(ctx, t.PreviewKey)
		return nil, e.dependencyError(ctx, "enroll biometric: create template", err)
	}

	if err := e.emit(ctx, AuditEvent{
		ActorID: accountID,
		Action:  auditBiometricEnroll,
		Outcome: outcomeSuccess,
		Context: map[string]string{
			"template_id": id,
			"confidence":  strconv.FormatFloat(features.Confidence, 'f', 4, 64),
		},
	}); err != nil {
		e.rollbackEnrollment(ctx, t)
		return nil, err
	}
	e.metricInc(MetricBiometricEnrolled)
	return &t, nil
}

// ConfirmBiometric matches sample against one pending template of accountID.
// A match verifies the template; a mismatch counts toward its lock.
func (e *Engine) ConfirmBiometric(ctx context.Context, accountID, templateID string, sample []byte) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.cipher == nil {
		return ErrBiometricDisabled
	}
	if accountID == "" || templateID == "" {
		return ErrInvalidInput
	}
	if err := e.throttleBiometric(ctx, accountID); err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	t, err := e.templates.GetTemplate(sctx, templateID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return e.dependencyError(ctx, "confirm biometric: load template", err)
	}
	// Another account's template is reported as absent.
	if t.AccountID != accountID {
		return ErrTemplateNotFound
	}
	switch biometric.StateOf(t, e.config.Biometric.FailureThreshold) {
	case biometric.StateLocked:
		return ErrBiometricLocked
	case biometric.StateVerified:
		return ErrTemplateNotPending
	}

	features, err := e.extract(ctx, sample)
	if err != nil {
		return err
	}

	comps, err := flows.CompareTemplates(ctx, []store.Template{t}, features.Vector, flows.CompareDeps{Open: e.openTemplate})
	if err != nil {
		return err
	}
	if comps[0].Err != nil {
		e.decryptFailure(ctx, t, comps[0].Err)
		return ErrBiometricEncryption
	}
	dec := flows.Decide(comps, e.config.Biometric.Tolerance, flows.PolicyAny)

	commit, err := flows.RunMatchCommit(ctx, comps, dec, flows.CommitDeps{
		RecordSuccess: func(ctx context.Context, id string) (store.Template, error) {
			return e.templates.MarkTemplateVerified(ctx, id, e.config.Biometric.FailureThreshold)
		},
		RecordFailure: e.recordMatchFailure,
		Audit: func(ctx context.Context, matched bool, updated []store.Template, writeErr error) error {
			ev := AuditEvent{
				ActorID: accountID,
				Action:  auditBiometricConfirm,
				Outcome: outcomeSuccess,
				Context: map[string]string{
					"template_id": templateID,
					"distance":    formatDistance(comps[0].Distance),
				},
			}
			if !matched {
				ev.Outcome = outcomeFailure
				ev.Severity = SeverityWarning
			}
			if matched != dec.Matched {
				ev.Context["state_changed"] = "true"
			}
			annotateCommit(&ev, updated, writeErr, e.config.Biometric.FailureThreshold)
			return e.emit(ctx, ev)
		},
		OnAuditLost: e.auditLost,
		Timeout:     e.config.Timeouts.Store,
	})
	e.countLocked(commit.Updated)
	if err != nil {
		return e.commitError(ctx, err)
	}

	if commit.Revoked {
		// The template left PENDING_VERIFICATION while the sample was being
		// compared.
		if len(commit.Updated) == 1 && biometric.StateOf(commit.Updated[0], e.config.Biometric.FailureThreshold) == biometric.StateVerified {
			return ErrTemplateNotPending
		}
		return ErrBiometricLocked
	}
	if !commit.Matched {
		e.metricInc(MetricBiometricMismatch)
		return ErrBiometricMismatch
	}
	e.metricInc(MetricBiometricConfirmed)
	return nil
}

// VerifyBiometric matches sample against every verified template of
// accountID. Templates that fail to decrypt are excluded and reported; the
// rest are compared in parallel and decided under the configured match
// policy. Counter updates and their audit record land together even if ctx
// is cancelled mid-way.
func (e *Engine) VerifyBiometric(ctx context.Context, accountID string, sample []byte) (*VerifyResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.cipher == nil {
		return nil, ErrBiometricDisabled
	}
	if accountID == "" {
		return nil, ErrInvalidInput
	}

	sctx, cancel := e.storeCtx(ctx)
	templates, err := e.templates.ListVerifiedTemplates(sctx, accountID)
	cancel()
	if err != nil {
		return nil, e.dependencyError(ctx, "verify biometric: list templates", err)
	}
	// An account without verified templates is answered before the
	// throttle so it never reads as rate limited.
	if len(templates) == 0 {
		_ = e.emit(ctx, AuditEvent{
			ActorID: accountID,
			Action:  auditBiometricVerify,
			Outcome: outcomeDenied,
			Context: map[string]string{"reason": "no_enrollment"},
		})
		return nil, ErrNoEnrollment
	}
	if err := e.throttleBiometric(ctx, accountID); err != nil {
		return nil, err
	}

	features, err := e.extract(ctx, sample)
	if err != nil {
		return nil, err
	}

	comps, err := flows.CompareTemplates(ctx, templates, features.Vector, flows.CompareDeps{Open: e.openTemplate})
	if err != nil {
		return nil, err
	}

	policy := e.config.Biometric.MatchPolicy
	dec := flows.Decide(comps, e.config.Biometric.Tolerance, policy)

	res := &VerifyResult{Matched: dec.Matched, Distances: make(map[string]float64, len(dec.Compared))}
	for _, i := range dec.Excluded {
		e.decryptFailure(ctx, templates[i], comps[i].Err)
		res.Excluded = append(res.Excluded, comps[i].TemplateID)
	}
	if len(dec.Compared) == 0 {
		return nil, ErrBiometricEncryption
	}
	for _, i := range dec.Compared {
		res.Distances[comps[i].TemplateID] = comps[i].Distance
	}
	res.TemplateID = comps[dec.Best].TemplateID
	res.Distance = comps[dec.Best].Distance

	commit, err := flows.RunMatchCommit(ctx, comps, dec, flows.CommitDeps{
		RecordSuccess: func(ctx context.Context, id string) (store.Template, error) {
			return e.templates.RecordMatchSuccess(ctx, id, e.now().UTC())
		},
		RecordFailure: e.recordMatchFailure,
		Audit: func(ctx context.Context, matched bool, updated []store.Template, writeErr error) error {
			ev := AuditEvent{
				ActorID: accountID,
				Action:  auditBiometricVerify,
				Outcome: outcomeSuccess,
				Context: map[string]string{
					"policy":        policy,
					"best_template": res.TemplateID,
					"compared":      strconv.Itoa(len(dec.Compared)),
					"excluded":      strconv.Itoa(len(dec.Excluded)),
				},
			}
			if !matched {
				ev.Outcome = outcomeFailure
				ev.Severity = SeverityWarning
			}
			if matched != dec.Matched {
				ev.Context["state_changed"] = "true"
			}
			for id, d := range res.Distances {
				ev.Context["distance."+id] = formatDistance(d)
			}
			annotateCommit(&ev, updated, writeErr, e.config.Biometric.FailureThreshold)
			return e.emit(ctx, ev)
		},
		OnAuditLost: e.auditLost,
		Timeout:     e.config.Timeouts.Store,
	})
	e.countLocked(commit.Updated)
	if err != nil {
		return nil, e.commitError(ctx, err)
	}

	res.Matched = commit.Matched
	if !res.Matched {
		e.metricInc(MetricBiometricMismatch)
		return res, ErrBiometricMismatch
	}
	e.metricInc(MetricBiometricMatch)
	return res, nil
}

// StepUpWithBiometric validates the session behind token, verifies sample
// against its account and marks the session as stepped up.
func (e *Engine) StepUpWithBiometric(ctx context.Context, token string, sig Signals, sample []byte) (*SessionResult, error) {
	res, err := e.ValidateSession(ctx, token, sig)
	if err != nil {
		return nil, err
	}
	if _, err := e.VerifyBiometric(ctx, res.AccountID, sample); err != nil {
		return nil, err
	}
	return e.stampStepUp(ctx, token, sig, StepUpBiometric)
}

// RemoveBiometric deletes a template and its preview artifact.
func (e *Engine) RemoveBiometric(ctx context.Context, templateID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.templates == nil {
		return ErrBiometricDisabled
	}
	if templateID == "" {
		return ErrInvalidInput
	}

	sctx, cancel := e.storeCtx(ctx)
	t, err := e.templates.GetTemplate(sctx, templateID)
	if err == nil {
		err = e.templates.DeleteTemplate(sctx, templateID)
	}
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return e.dependencyError(ctx, "remove biometric", err)
	}
	e.deletePreview(ctx, t.PreviewKey)

	e.metricInc(MetricBiometricRemoved)
	return e.emit(ctx, AuditEvent{
		ActorID:  ActorIDFromContext(ctx),
		Action:   auditBiometricRemove,
		Outcome:  outcomeSuccess,
		Severity: SeverityWarning,
		Context:  map[string]string{"account_id": t.AccountID, "template_id": t.ID},
	})
}

// ListBiometric returns the templates of accountID with their state.
func (e *Engine) ListBiometric(ctx context.Context, accountID string) ([]BiometricEnrollment, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.templates == nil {
		return nil, ErrBiometricDisabled
	}
	sctx, cancel := e.storeCtx(ctx)
	templates, err := e.templates.ListTemplates(sctx, accountID)
	cancel()
	if err != nil {
		return nil, e.dependencyError(ctx, "list biometric", err)
	}
	out := make([]BiometricEnrollment, 0, len(templates))
	for _, t := range templates {
		out = append(out, BiometricEnrollment{
			ID:                t.ID,
			Label:             t.Label,
			State:             biometric.StateOf(t, e.config.Biometric.FailureThreshold),
			SuccessfulMatches: t.SuccessfulMatches,
			FailedMatches:     t.FailedMatches,
			EnrolledAt:        t.EnrolledAt,
			LastSuccess:       t.LastSuccess,
			LastFailure:       t.LastFailure,
		})
	}
	return out, nil
}

func (e *Engine) extract(ctx context.Context, sample []byte) (biometric.Features, error) {
	if len(sample) == 0 || len(sample) > e.config.Biometric.MaxSampleBytes {
		return biometric.Features{}, ErrInvalidInput
	}
	f, err := e.extractor.Extract(ctx, sample)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return biometric.Features{}, ctxErr
		}
		return biometric.Features{}, fmt.Errorf("%w: %v", ErrFeatureExtraction, err)
	}
	if len(f.Vector) != e.config.Biometric.VectorSize {
		return biometric.Features{}, fmt.Errorf("%w: vector size %d, want %d", ErrFeatureExtraction, len(f.Vector), e.config.Biometric.VectorSize)
	}
	if !biometric.Valid(f.Vector) {
		return biometric.Features{}, fmt.Errorf("%w: non-finite vector", ErrFeatureExtraction)
	}
	if f.Confidence < e.config.Biometric.MinConfidence {
		return biometric.Features{}, fmt.Errorf("%w: confidence %.2f below %.2f", ErrFeatureExtraction, f.Confidence, e.config.Biometric.MinConfidence)
	}
	return f, nil
}

func (e *Engine) openTemplate(t store.Template) ([]float64, error) {
	return e.cipher.Open(t.AccountID, t.ID, t.EncryptedVector, t.IntegrityHash)
}

func (e *Engine) recordMatchFailure(ctx context.Context, id string) (store.Template, error) {
	return e.templates.RecordMatchFailure(ctx, id, e.now().UTC(), e.config.Biometric.FailureThreshold)
}

func (e *Engine) throttleBiometric(ctx context.Context, accountID string) error {
	err := e.allow(ctx, "bio:"+accountID, ErrBiometricRateLimited)
	if errors.Is(err, ErrBiometricRateLimited) {
		e.metricInc(MetricBiometricRateLimited)
		_ = e.emit(ctx, AuditEvent{
			ActorID:  accountID,
			Action:   auditBiometricThrottle,
			Outcome:  outcomeDenied,
			Severity: SeverityWarning,
		})
	}
	return err
}

// allow consults the step-up limiter; limited is returned when the key is
// over budget.
func (e *Engine) allow(ctx context.Context, key string, limited error) error {
	return e.allowWith(ctx, e.limiter, key, limited)
}

func (e *Engine) allowWith(ctx context.Context, l Limiter, key string, limited error) error {
	if l == nil {
		return nil
	}
	err := l.Allow(ctx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, throttle.ErrLimited):
		return limited
	default:
		return e.dependencyError(ctx, "throttle", err)
	}
}

func (e *Engine) decryptFailure(ctx context.Context, t store.Template, err error) {
	e.metricInc(MetricBiometricDecryptFailure)
	e.critical(ctx, "biometric template failed to open",
		"account_id", t.AccountID,
		"template_id", t.ID,
		"error", err,
	)
	_ = e.emit(ctx, AuditEvent{
		ActorID:  t.AccountID,
		Action:   auditBiometricDecrypt,
		Outcome:  outcomeError,
		Severity: SeverityCritical,
		Context:  map[string]string{"template_id": t.ID},
	})
}

func (e *Engine) countLocked(updated []store.Template) {
	for _, t := range updated {
		if biometric.StateOf(t, e.config.Biometric.FailureThreshold) == biometric.StateLocked {
			e.metricInc(MetricBiometricTemplateLocked)
		}
	}
}

func (e *Engine) auditLost(updated []store.Template, err error) {
	ids := make([]string, 0, len(updated))
	for _, t := range updated {
		ids = append(ids, t.ID)
	}
	e.logger.Error("biometric counters committed without audit record",
		"template_ids", strings.Join(ids, ","),
		"error", err,
	)
}

func (e *Engine) commitError(ctx context.Context, err error) error {
	if errors.Is(err, ErrDependencyTimeout) {
		return err
	}
	if errors.Is(err, flows.ErrCommitAborted) {
		return fmt.Errorf("%w: %v", ErrDependencyTimeout, err)
	}
	return e.dependencyError(ctx, "biometric commit", err)
}

func (e *Engine) rollbackEnrollment(ctx context.Context, t store.Template) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeouts.Store)
	defer cancel()
	if err := e.templates.DeleteTemplate(sctx, t.ID); err != nil {
		e.logger.ErrorContext(ctx, "enrollment rollback failed", "template_id", t.ID, "error", err)
	}
	e.deletePreview(ctx, t.PreviewKey)
}

func (e *Engine) deletePreview(ctx context.Context, key string) {
	if key == "" || e.previews == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeouts.Store)
	defer cancel()
	if err := e.previews.DeletePreview(sctx, key); err != nil {
		e.logger.WarnContext(ctx, "preview cleanup failed", "key", key, "error", err)
	}
}

func annotateCommit(ev *AuditEvent, updated []store.Template, writeErr error, threshold int) {
	for _, t := range updated {
		if biometric.StateOf(t, threshold) == biometric.StateLocked {
			ev.Context["locked."+t.ID] = "true"
			ev.Severity = SeverityWarning
		}
	}
	if writeErr != nil {
		ev.Context["counter_write"] = "partial"
	}
}

func previewKey(accountID, templateID string) string {
	return "previews/" + accountID + "/" + templateID
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', 4, 64)
}
