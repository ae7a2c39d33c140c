package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/patrickmn/go-cache"

	"github.com/jmylchreest/prayerline/internal/models"
)

// MemoryStore is the ephemeral SessionStore. Sessions live in a TTL cache;
// payments, intentions and upsell records live in maps guarded by mu and are
// dropped when their session expires.
type MemoryStore struct {
	sessions *cache.Cache

	mu                 sync.Mutex
	payments           map[string]*models.Payment
	paymentByRef       map[string]string
	paymentByKey       map[string]string
	intentions         map[string]*models.PrayerIntention
	intentionBySession map[string]string
	upsells            map[string]*models.UpsellSession
}

// NewMemoryStore creates an ephemeral store whose sessions expire after ttl idle.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	m := &MemoryStore{
		sessions:           cache.New(ttl, 10*time.Minute),
		payments:           make(map[string]*models.Payment),
		paymentByRef:       make(map[string]string),
		paymentByKey:       make(map[string]string),
		intentions:         make(map[string]*models.PrayerIntention),
		intentionBySession: make(map[string]string),
		upsells:            make(map[string]*models.UpsellSession),
	}
	m.sessions.OnEvicted(func(id string, _ interface{}) {
		m.dropRelated(id)
	})
	return m
}

// Create stores a new session.
func (m *MemoryStore) Create(_ context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.Version = 1

	if err := m.sessions.Add(s.ID, s.Clone(), cache.DefaultExpiration); err != nil {
		return ErrConflict
	}
	return nil
}

// Get returns a copy of the session, or nil if absent or expired.
func (m *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	if x, found := m.sessions.Get(id); found {
		return x.(*models.Session).Clone(), nil
	}
	return nil, nil
}

// Update applies fn to a copy and commits it if no other write landed first.
func (m *MemoryStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.Session, error) {
	prev, _ := m.Get(ctx, id)
	if prev == nil {
		return nil, ErrSessionNotFound
	}

	next := prev.Clone()
	writes, err := fn(next)
	if err != nil {
		return nil, err
	}
	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	if err := checkAppendOnly(prev.History, next.History); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	x, found := m.sessions.Get(id)
	if !found {
		return nil, ErrSessionNotFound
	}
	if x.(*models.Session).Version != prev.Version {
		return nil, ErrConflict
	}
	if err := m.checkWritesLocked(writes); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := len(prev.History); i < len(next.History); i++ {
		if next.History[i].CreatedAt.IsZero() {
			next.History[i].CreatedAt = now
		}
	}
	next.Version = prev.Version + 1
	next.UpdatedAt = now
	m.applyWritesLocked(writes, now)
	m.sessions.Set(id, next.Clone(), cache.DefaultExpiration)

	return next, nil
}

// checkWritesLocked validates every write before any is applied so a failed
// turn leaves nothing behind.
func (m *MemoryStore) checkWritesLocked(w *TurnWrites) error {
	if w == nil {
		return nil
	}
	if w.Intention != nil {
		if _, exists := m.intentionBySession[w.Intention.SessionID]; exists {
			return ErrConflict
		}
	}
	seenRef := make(map[string]bool)
	seenKey := make(map[string]bool)
	for _, p := range w.NewPayments {
		if _, exists := m.paymentByRef[p.GatewayRef]; exists || seenRef[p.GatewayRef] {
			return ErrConflict
		}
		if _, exists := m.paymentByKey[p.IdempotencyKey]; exists || seenKey[p.IdempotencyKey] {
			return ErrConflict
		}
		seenRef[p.GatewayRef] = true
		seenKey[p.IdempotencyKey] = true
	}
	for _, c := range w.PaymentChanges {
		p, ok := m.payments[c.PaymentID]
		if !ok || p.Status != c.From {
			return ErrDuplicatePayment
		}
	}
	return nil
}

func (m *MemoryStore) applyWritesLocked(w *TurnWrites, now time.Time) {
	if w == nil {
		return
	}
	if in := w.Intention; in != nil {
		if in.ID == "" {
			in.ID = ulid.Make().String()
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = now
		}
		if in.Status == "" {
			in.Status = models.IntentionStatusPending
		}
		m.intentions[in.ID] = cloneIntention(in)
		m.intentionBySession[in.SessionID] = in.ID
	}
	for _, p := range w.NewPayments {
		if p.ID == "" {
			p.ID = ulid.Make().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.Attempt == 0 {
			p.Attempt = 1
		}
		p.UpdatedAt = now
		m.payments[p.ID] = clonePayment(p)
		m.paymentByRef[p.GatewayRef] = p.ID
		m.paymentByKey[p.IdempotencyKey] = p.ID
	}
	for _, c := range w.PaymentChanges {
		p := m.payments[c.PaymentID]
		at := c.At
		if at.IsZero() {
			at = now
		}
		p.Status = c.To
		p.UpdatedAt = at
		if c.FailureReason != "" {
			p.FailureReason = c.FailureReason
		}
		if c.To == models.PaymentStatusPaid {
			paidAt := at
			p.PaidAt = &paidAt
		}
	}
	if u := w.Upsell; u != nil {
		key := upsellKey(u.OriginalSessionID, u.Chain)
		if existing, ok := m.upsells[key]; ok {
			u.ID = existing.ID
			u.CreatedAt = existing.CreatedAt
			u.Upsell1Outcome = existing.Clone().Upsell1Outcome
		} else {
			if u.ID == "" {
				u.ID = ulid.Make().String()
			}
			u.CreatedAt = now
		}
		u.UpdatedAt = now
		m.upsells[key] = u.Clone()
	}
}

func (m *MemoryStore) dropRelated(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.payments {
		if p.SessionID == sessionID {
			delete(m.paymentByRef, p.GatewayRef)
			delete(m.paymentByKey, p.IdempotencyKey)
			delete(m.payments, id)
		}
	}
	if id, ok := m.intentionBySession[sessionID]; ok {
		delete(m.intentions, id)
		delete(m.intentionBySession, sessionID)
	}
	prefix := sessionID + ":"
	for key := range m.upsells {
		if strings.HasPrefix(key, prefix) {
			delete(m.upsells, key)
		}
	}
}

// Payments returns the payment read view.
func (m *MemoryStore) Payments() PaymentRepository { return memoryPayments{m} }

// Intentions returns the intention view.
func (m *MemoryStore) Intentions() IntentionRepository { return memoryIntentions{m} }

// Upsells returns the upsell read view.
func (m *MemoryStore) Upsells() UpsellRepository { return memoryUpsells{m} }

type memoryPayments struct{ m *MemoryStore }

func (r memoryPayments) Get(_ context.Context, id string) (*models.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if p, ok := r.m.payments[id]; ok {
		return clonePayment(p), nil
	}
	return nil, nil
}

func (r memoryPayments) GetByGatewayRef(ctx context.Context, ref string) (*models.Payment, error) {
	r.m.mu.Lock()
	id, ok := r.m.paymentByRef[ref]
	r.m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.Get(ctx, id)
}

func (r memoryPayments) ListBySession(_ context.Context, sessionID string) ([]*models.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var out []*models.Payment
	for _, p := range r.m.payments {
		if p.SessionID == sessionID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryPayments) LatestForOffer(_ context.Context, sessionID string, kind models.PaymentKind, item string) (*models.Payment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var latest *models.Payment
	for _, p := range r.m.payments {
		if p.SessionID != sessionID || p.Kind != kind {
			continue
		}
		if kind == models.PaymentKindTier && p.Tier != item {
			continue
		}
		if kind != models.PaymentKindTier && string(p.OfferType) != item {
			continue
		}
		if latest == nil || p.Attempt > latest.Attempt {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	return clonePayment(latest), nil
}

type memoryIntentions struct{ m *MemoryStore }

func (r memoryIntentions) Get(_ context.Context, id string) (*models.PrayerIntention, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if in, ok := r.m.intentions[id]; ok {
		return cloneIntention(in), nil
	}
	return nil, nil
}

func (r memoryIntentions) GetBySession(ctx context.Context, sessionID string) (*models.PrayerIntention, error) {
	r.m.mu.Lock()
	id, ok := r.m.intentionBySession[sessionID]
	r.m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.Get(ctx, id)
}

func (r memoryIntentions) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	in, ok := r.m.intentions[id]
	if !ok || in.Status != models.IntentionStatusPending {
		return false, nil
	}
	at = at.UTC()
	in.Status = models.IntentionStatusDelivered
	in.DeliveredAt = &at
	return true, nil
}

type memoryUpsells struct{ m *MemoryStore }

func (r memoryUpsells) Get(_ context.Context, originalSessionID string, chain models.UpsellChain) (*models.UpsellSession, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if u, ok := r.m.upsells[upsellKey(originalSessionID, chain)]; ok {
		return u.Clone(), nil
	}
	return nil, nil
}

func upsellKey(sessionID string, chain models.UpsellChain) string {
	return fmt.Sprintf("%s:%d", sessionID, chain)
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	if p.PrayerID != nil {
		v := *p.PrayerID
		c.PrayerID = &v
	}
	if p.PaidAt != nil {
		v := *p.PaidAt
		c.PaidAt = &v
	}
	return &c
}

func cloneIntention(in *models.PrayerIntention) *models.PrayerIntention {
	c := *in
	if in.DeliveredAt != nil {
		v := *in.DeliveredAt
		c.DeliveredAt = &v
	}
	return &c
}
