// Package services – ImportService
//
// ImportService keeps the interactive import sessions: an uploaded file is
// parsed and classified into a preview, the user resolves duplicates and
// corrects invalid candidates, and Confirm applies the batch through the
// reconciler. Sessions live in memory and expire after a period of
// inactivity. Confirm honours an idempotency key so a retried request returns
// the stored report instead of applying twice.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/internal/importer"
	"github.com/tbourn/recipe-notebook/internal/repo"
)

const (
	defaultSessionTTL = 30 * time.Minute
	defaultIdemTTL    = 24 * time.Hour
	defaultMaxBytes   = 10 << 20
)

// SessionView is a snapshot of an import session safe to hand to callers.
type SessionView struct {
	ID        string           `json:"id"`
	Summary   importer.Summary `json:"summary"`
	Items     []importer.Item  `json:"items"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type session struct {
	mu      sync.Mutex
	id      string
	preview *importer.Preview
	touched time.Time
	done    bool
}

// ImportService manages import sessions.
type ImportService struct {
	// DB stores idempotency records for Confirm. Nil disables replay.
	DB         *gorm.DB
	Reconciler *importer.Reconciler

	TTL      time.Duration
	IdemTTL  time.Duration
	MaxBytes int64
	Now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewImportService constructs an ImportService reconciling against store.
// Zero ttl or maxBytes select the defaults (30m, 10 MiB).
func NewImportService(db *gorm.DB, store importer.Store, ttl time.Duration, maxBytes int64) *ImportService {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &ImportService{
		DB:         db,
		Reconciler: &importer.Reconciler{Store: store},
		TTL:        ttl,
		IdemTTL:    defaultIdemTTL,
		MaxBytes:   maxBytes,
		sessions:   make(map[string]*session),
	}
}

func importTracer() trace.Tracer { return otel.Tracer("services/ImportService") }

func (s *ImportService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Preview parses data, classifies every candidate and opens a session.
func (s *ImportService) Preview(ctx context.Context, data []byte) (*SessionView, error) {
	ctx, span := importTracer().Start(ctx, "Preview",
		trace.WithAttributes(attribute.Int("import.bytes", len(data))),
	)
	defer span.End()

	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return nil, ErrPayloadTooLarge
	}
	cands, err := importer.ParseBatch(data)
	if err != nil {
		return nil, err
	}
	p, err := s.Reconciler.Preview(ctx, cands)
	if err != nil {
		return nil, err
	}

	sess := &session{id: uuid.NewString(), preview: p, touched: s.now()}
	s.mu.Lock()
	s.sweepLocked(sess.touched)
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("import.session", sess.id),
		attribute.Int("import.candidates", len(p.Items)),
	)
	return s.view(sess), nil
}

// Get returns the current state of session id.
func (s *ImportService) Get(id string) (*SessionView, error) {
	sess, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// SetDecision records how the duplicate at index is resolved.
func (s *ImportService) SetDecision(id string, index int, d importer.Decision) (*importer.Item, error) {
	sess, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	if err := sess.preview.SetDecision(index, d); err != nil {
		return nil, err
	}
	it, _ := sess.preview.Item(index)
	cp := *it
	return &cp, nil
}

// SetAllDecisions applies d to every duplicate and returns how many changed.
func (s *ImportService) SetAllDecisions(id string, d importer.Decision) (int, error) {
	sess, err := s.acquire(id)
	if err != nil {
		return 0, err
	}
	defer sess.mu.Unlock()
	return sess.preview.SetAllDecisions(d)
}

// Correct replaces the candidate at index and re-classifies it.
func (s *ImportService) Correct(id string, index int, c importer.Candidate) (*importer.Item, error) {
	sess, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	it, err := sess.preview.Correct(index, c)
	if err != nil {
		return nil, err
	}
	cp := *it
	return &cp, nil
}

// Confirm applies session id. On success the session is closed and, when
// idemKey is set, the report is stored so a retry with the same key returns
// it with replayed=true. On a store failure the partial report is returned
// with the error and the session stays open.
func (s *ImportService) Confirm(ctx context.Context, id, idemKey string) (rep *importer.Report, replayed bool, err error) {
	ctx, span := importTracer().Start(ctx, "Confirm",
		trace.WithAttributes(attribute.String("import.session", id)),
	)
	defer span.End()

	if prev, ok := s.replay(ctx, id, idemKey); ok {
		span.SetAttributes(attribute.Bool("import.replayed", true))
		return prev, true, nil
	}

	sess, err := s.acquire(id)
	if err != nil {
		return nil, false, err
	}
	defer sess.mu.Unlock()

	rep, err = s.Reconciler.Apply(ctx, sess.preview)
	if err != nil {
		return rep, false, err
	}

	sess.done = true
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.remember(ctx, id, idemKey, rep)
	span.SetAttributes(
		attribute.Int("import.inserted", rep.Inserted),
		attribute.Int("import.updated", rep.Updated),
		attribute.Int("import.stale", rep.Stale),
	)
	return rep, false, nil
}

// Cancel discards session id without writing anything.
func (s *ImportService) Cancel(id string) error {
	sess, err := s.acquire(id)
	if err != nil {
		return err
	}
	sess.done = true
	sess.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// acquire returns the live session locked. Callers must unlock sess.mu.
func (s *ImportService) acquire(id string) (*session, error) {
	now := s.now()
	s.mu.Lock()
	s.sweepLocked(now)
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	if sess.done {
		sess.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	sess.touched = now
	return sess, nil
}

// sweepLocked evicts idle sessions. s.mu must be held. Sessions busy in
// another call are left for the next sweep.
func (s *ImportService) sweepLocked(now time.Time) {
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if now.Sub(sess.touched) > s.TTL {
			sess.done = true
			delete(s.sessions, id)
		}
		sess.mu.Unlock()
	}
}

func (s *ImportService) view(sess *session) *SessionView {
	items := make([]importer.Item, len(sess.preview.Items))
	for i, it := range sess.preview.Items {
		items[i] = *it
	}
	return &SessionView{
		ID:        sess.id,
		Summary:   sess.preview.Summary(),
		Items:     items,
		ExpiresAt: sess.touched.Add(s.TTL),
	}
}

func (s *ImportService) replay(ctx context.Context, id, key string) (*importer.Report, bool) {
	if s.DB == nil || key == "" {
		return nil, false
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, id, key, s.now())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("session_id", id).Msg("idempotency lookup failed")
		}
		return nil, false
	}
	var rep importer.Report
	if err := json.Unmarshal([]byte(rec.Response), &rep); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("stored import report unreadable")
		return nil, false
	}
	return &rep, true
}

func (s *ImportService) remember(ctx context.Context, id, key string, rep *importer.Report) {
	if s.DB == nil || key == "" {
		return
	}
	b, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if _, err := repo.CreateIdempotency(ctx, s.DB, id, key, http.StatusOK, string(b), s.IdemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		log.Warn().Err(err).Str("session_id", id).Msg("store idempotency record")
	}
	if _, err := repo.DeleteExpiredIdempotency(ctx, s.DB, s.now()); err != nil {
		log.Debug().Err(err).Msg("purge expired idempotency records")
	}
}

// Lookup reports whether a stored Confirm result exists for (sessionID, key).
// It matches middleware.IdempotencyLookup.
func (s *ImportService) Lookup(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
	if s.DB == nil {
		return false, nil
	}
	_, err := repo.GetIdempotency(ctx, s.DB, sessionID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
