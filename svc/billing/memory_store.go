package billing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store held in process memory. Every method runs under
// one mutex, which gives it the same atomicity as the Postgres store. It
// backs tests and the development server.
type MemoryStore struct {
	mu           sync.Mutex
	merchants    map[uuid.UUID]Merchant
	plans        map[uuid.UUID]Plan
	subscribers  map[uuid.UUID]Subscriber
	byExternalID map[string]uuid.UUID
	transactions []PaymentTransaction
	tokens       map[string]AccessToken
	mutations    int
	now          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		merchants:    make(map[uuid.UUID]Merchant),
		plans:        make(map[uuid.UUID]Plan),
		subscribers:  make(map[uuid.UUID]Subscriber),
		byExternalID: make(map[string]uuid.UUID),
		tokens:       make(map[string]AccessToken),
		now:          time.Now,
	}
}

// AddMerchant seeds a merchant. Seeding is not counted as a mutation.
func (s *MemoryStore) AddMerchant(m Merchant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchants[m.ID] = m
}

// AddPlan seeds a plan. Seeding is not counted as a mutation.
func (s *MemoryStore) AddPlan(p Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Features = slices.Clone(p.Features)
	s.plans[p.ID] = p
}

// MutationCount is the number of successful writes since creation.
func (s *MemoryStore) MutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// Transactions returns a copy of the payment log in insertion order.
func (s *MemoryStore) Transactions() []PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transactions)
}

func (s *MemoryStore) GetMerchant(_ context.Context, id uuid.UUID) (*Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[id]
	if !ok {
		return nil, ErrMerchantNotFound
	}
	return &m, nil
}

func (s *MemoryStore) UpdateMerchantCredentials(_ context.Context, id uuid.UUID, creds ProcessorCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[id]
	if !ok {
		return ErrMerchantNotFound
	}
	m.Credentials = creds
	m.UpdatedAt = s.now().UTC()
	s.merchants[id] = m
	s.mutations++
	return nil
}

func (s *MemoryStore) GetPlan(_ context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	p.Features = slices.Clone(p.Features)
	return &p, nil
}

func (s *MemoryStore) ReconcilePlanCounters(context.Context) ([]CounterDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual := make(map[uuid.UUID]int64, len(s.plans))
	for _, sub := range s.subscribers {
		if sub.Status != StatusCancelled {
			actual[sub.PlanID]++
		}
	}

	var drift []CounterDrift
	for id, p := range s.plans {
		if p.SubscriberCount == actual[id] {
			continue
		}
		drift = append(drift, CounterDrift{PlanID: id, Stored: p.SubscriberCount, Actual: actual[id]})
		p.SubscriberCount = actual[id]
		s.plans[id] = p
	}
	if len(drift) > 0 {
		s.mutations++
	}
	return drift, nil
}

func (s *MemoryStore) GetSubscriber(_ context.Context, id uuid.UUID) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetSubscriberByExternalID(_ context.Context, externalID string) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byExternal(externalID)
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) CreateSubscriber(_ context.Context, sub *Subscriber) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternalID[sub.ExternalSubscriptionID]; exists {
		return false, nil
	}
	p, ok := s.plans[sub.PlanID]
	if !ok {
		return false, ErrPlanNotFound
	}
	p.SubscriberCount++
	s.plans[p.ID] = p
	s.subscribers[sub.ID] = *sub
	s.byExternalID[sub.ExternalSubscriptionID] = sub.ID
	s.mutations++
	return true, nil
}

func (s *MemoryStore) UpdateSubscriber(_ context.Context, externalID string, upd SubscriberUpdate) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byExternal(externalID)
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	if upd.Empty() {
		return &sub, nil
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.NextRenewalDate != nil {
		sub.NextRenewalDate = *upd.NextRenewalDate
	}
	if upd.LastPaymentDate != nil {
		t := *upd.LastPaymentDate
		sub.LastPaymentDate = &t
	}
	if upd.LastPaymentAmount != nil {
		sub.LastPaymentAmount.Decimal = *upd.LastPaymentAmount
		sub.LastPaymentAmount.Valid = true
	}
	sub.UpdatedAt = s.now().UTC()
	s.subscribers[sub.ID] = sub
	s.mutations++
	return &sub, nil
}

func (s *MemoryStore) CancelSubscriber(_ context.Context, externalID string, at time.Time) (*Subscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byExternal(externalID)
	if !ok {
		return nil, false, ErrSubscriberNotFound
	}
	if sub.Status == StatusCancelled {
		return &sub, false, nil
	}
	if p, ok := s.plans[sub.PlanID]; ok && p.SubscriberCount > 0 {
		p.SubscriberCount--
		s.plans[p.ID] = p
	}
	sub.Status = StatusCancelled
	sub.UpdatedAt = at
	s.subscribers[sub.ID] = sub
	s.mutations++
	return &sub, true, nil
}

func (s *MemoryStore) InsertTransaction(_ context.Context, txn *PaymentTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.transactions {
		if t.ExternalPaymentID != txn.ExternalPaymentID {
			continue
		}
		if t.Status == TransactionSuccess || txn.Status != TransactionSuccess {
			return false, nil
		}
		t.Amount = txn.Amount
		t.Currency = txn.Currency
		t.Status = txn.Status
		t.PaymentDate = txn.PaymentDate
		t.PaymentMethod = txn.PaymentMethod
		s.transactions[i] = t
		txn.ID = t.ID
		s.mutations++
		return true, nil
	}
	s.transactions = append(s.transactions, *txn)
	s.mutations++
	return true, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (s *MemoryStore) SaveAccessToken(_ context.Context, tok *AccessToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[tok.SessionID]; exists {
		return false, nil
	}
	s.tokens[tok.SessionID] = *tok
	s.mutations++
	return true, nil
}

func (s *MemoryStore) GetAccessToken(_ context.Context, sessionID string) (*AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[sessionID]
	if !ok {
		return nil, ErrAccessTokenNotFound
	}
	return &tok, nil
}

func (s *MemoryStore) ConsumeAccessToken(_ context.Context, sessionID string, now time.Time) (*AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[sessionID]
	if !ok || tok.Used || !tok.ExpiresAt.After(now) {
		return nil, ErrAccessTokenNotFound
	}
	tok.Used = true
	tok.UsedAt = &now
	s.tokens[sessionID] = tok
	s.mutations++
	return &tok, nil
}

func (s *MemoryStore) byExternal(externalID string) (Subscriber, bool) {
	id, ok := s.byExternalID[externalID]
	if !ok {
		return Subscriber{}, false
	}
	sub, ok := s.subscribers[id]
	return sub, ok
}
