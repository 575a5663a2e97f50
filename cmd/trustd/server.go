package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/metrics/export/prometheus"
	"github.com/MrEthical07/goTrust/middleware"
	"github.com/MrEthical07/goTrust/store/sqlite"
)

const maxBodyBytes = 16 << 10

type server struct {
	engine  *goTrust.Engine
	audit   *sqlite.AuditLog
	metrics *prometheus.Exporter
	logger  *slog.Logger
}

func newServer(engine *goTrust.Engine, auditLog *sqlite.AuditLog, metrics *prometheus.Exporter, logger *slog.Logger) *server {
	return &server{engine: engine, audit: auditLog, metrics: metrics, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /v1/login", s.login)
	mux.HandleFunc("POST /v1/logout", s.logout)
	mux.HandleFunc("GET /v1/session", s.session)
	mux.HandleFunc("POST /v1/password", s.changePassword)

	mux.HandleFunc("POST /v1/step-up/totp", s.stepUpTOTP)
	mux.HandleFunc("POST /v1/step-up/biometric", s.stepUpBiometric)

	mux.HandleFunc("GET /v1/biometric", s.listBiometric)
	mux.HandleFunc("POST /v1/biometric", s.enrollBiometric)
	mux.HandleFunc("POST /v1/biometric/{id}/confirm", s.confirmBiometric)
	mux.Handle("DELETE /v1/biometric/{id}",
		middleware.Guard(s.engine, "biometric.remove")(http.HandlerFunc(s.removeBiometric)))

	mux.Handle("POST /v1/accounts/{id}/unlock",
		middleware.Guard(s.engine, "account.unlock")(http.HandlerFunc(s.unlock)))
	mux.Handle("GET /v1/audit",
		middleware.Guard(s.engine, "audit.read")(http.HandlerFunc(s.listAudit)))
	return mux
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	sig := middleware.SignalsFromRequest(r)
	ctx := goTrust.WithClientIP(r.Context(), sig.RemoteIP)
	acct, err := s.engine.Authenticate(ctx, body.Handle, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.engine.CreateSession(ctx, acct, sig)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "account_id": acct.ID, "role": acct.Role})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.fail(w, r, goTrust.ErrNoSession)
		return
	}
	if err := s.engine.DestroySession(r.Context(), token); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) session(w http.ResponseWriter, r *http.Request) {
	res, ok := s.validate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

// validate resolves the bearer session of r, writing the failure itself.
func (s *server) validate(w http.ResponseWriter, r *http.Request) (*goTrust.SessionResult, bool) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.fail(w, r, goTrust.ErrNoSession)
		return nil, false
	}
	sig := middleware.SignalsFromRequest(r)
	res, err := s.engine.ValidateSession(goTrust.WithClientIP(r.Context(), sig.RemoteIP), token, sig)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return res, true
}

func viewOf(res *goTrust.SessionResult) sessionView {
	return sessionView{
		AccountID:       res.AccountID,
		Role:            res.Role,
		CreatedAt:       res.CreatedAt,
		StepUpActive:    res.StepUpActive,
		StepUpMethod:    res.StepUpMethod,
		StepUpExpiresAt: res.StepUpExpiresAt,
	}
}

// sessionView omits the session ID.
type sessionView struct {
	AccountID       string    `json:"account_id"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"created_at"`
	StepUpActive    bool      `json:"step_up_active"`
	StepUpMethod    string    `json:"step_up_method,omitempty"`
	StepUpExpiresAt time.Time `json:"step_up_expires_at,omitzero"`
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.fail(w, r, goTrust.ErrNoSession)
		return
	}
	var body struct {
		Current string `json:"current"`
		Next    string `json:"next"`
	}
	if !decode(w, r, &body) {
		return
	}
	res, err := s.engine.ValidateSession(r.Context(), token, middleware.SignalsFromRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.ChangePassword(goTrust.WithActorID(r.Context(), res.AccountID), res.AccountID, body.Current, body.Next); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) stepUpTOTP(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.fail(w, r, goTrust.ErrNoSession)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}
	sig := middleware.SignalsFromRequest(r)
	res, err := s.engine.StepUpWithTOTP(goTrust.WithClientIP(r.Context(), sig.RemoteIP), token, sig, body.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

// sampleBody carries a biometric sample as raw JSON; trustd extracts with
// biometric.VectorExtractor, so the sample is the feature vector itself.
type sampleBody struct {
	Sample json.RawMessage `json:"sample"`
	Label  string          `json:"label,omitempty"`
}

func (s *server) stepUpBiometric(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.fail(w, r, goTrust.ErrNoSession)
		return
	}
	var body sampleBody
	if !decode(w, r, &body) {
		return
	}
	sig := middleware.SignalsFromRequest(r)
	res, err := s.engine.StepUpWithBiometric(goTrust.WithClientIP(r.Context(), sig.RemoteIP), token, sig, body.Sample)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

func (s *server) enrollBiometric(w http.ResponseWriter, r *http.Request) {
	var body sampleBody
	if !decode(w, r, &body) {
		return
	}
	res, ok := s.validate(w, r)
	if !ok {
		return
	}
	ctx := goTrust.WithActorID(r.Context(), res.AccountID)
	tpl, err := s.engine.EnrollBiometric(ctx, res.AccountID, body.Sample, body.Label)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"template_id": tpl.ID})
}

func (s *server) confirmBiometric(w http.ResponseWriter, r *http.Request) {
	var body sampleBody
	if !decode(w, r, &body) {
		return
	}
	res, ok := s.validate(w, r)
	if !ok {
		return
	}
	ctx := goTrust.WithActorID(r.Context(), res.AccountID)
	if err := s.engine.ConfirmBiometric(ctx, res.AccountID, r.PathValue("id"), body.Sample); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enrollmentView struct {
	ID                string    `json:"id"`
	Label             string    `json:"label,omitempty"`
	State             string    `json:"state"`
	SuccessfulMatches int       `json:"successful_matches"`
	FailedMatches     int       `json:"failed_matches"`
	EnrolledAt        time.Time `json:"enrolled_at"`
}

func (s *server) listBiometric(w http.ResponseWriter, r *http.Request) {
	res, ok := s.validate(w, r)
	if !ok {
		return
	}
	list, err := s.engine.ListBiometric(r.Context(), res.AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]enrollmentView, 0, len(list))
	for _, b := range list {
		out = append(out, enrollmentView{
			ID:                b.ID,
			Label:             b.Label,
			State:             string(b.State),
			SuccessfulMatches: b.SuccessfulMatches,
			FailedMatches:     b.FailedMatches,
			EnrolledAt:        b.EnrolledAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) removeBiometric(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveBiometric(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) unlock(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnlockAccount(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := sqlite.Filter{
		ActorID:  q.Get("actor"),
		Action:   q.Get("action"),
		Severity: audit.Severity(q.Get("severity")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		f.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		f.Since = t
	}

	events, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// fail writes the public message for err; internal detail goes to the log.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := middleware.StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	switch {
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="gotrust"`)
	case errors.Is(err, goTrust.ErrStepUpRequired):
		w.Header().Set("WWW-Authenticate", middleware.StepUpChallenge)
	}
	writeJSON(w, status, map[string]string{
		"error":   string(goTrust.Classify(err)),
		"message": goTrust.PublicMessage(err),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
