package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/shiftworks/assignment-service/internal/models"
	"github.com/shiftworks/assignment-service/internal/repositories"
	"github.com/shiftworks/assignment-service/internal/utils"
)

// testClock is a settable clock shared by the services and the store.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// memStore is an in-memory record store. All multi-row operations run
// under one mutex, which gives them the atomicity the Postgres
// repositories get from transactions.
type memStore struct {
	mu    sync.Mutex
	clock *testClock

	userNames    map[uuid.UUID]string
	jobs         map[uuid.UUID]*models.Job
	bankAccounts map[uuid.UUID]*models.BankAccount
	assignments  map[uuid.UUID]*models.Assignment
	tokens       map[uuid.UUID]*models.VerificationToken
	payments     map[uuid.UUID]*models.Payment // keyed by assignment id
	withdrawals  map[uuid.UUID]*models.WithdrawalRequest
	tasks        map[uuid.UUID]*models.SettlementTask // keyed by assignment id

	userLocksMu sync.Mutex
	userLocks   map[uuid.UUID]*sync.Mutex

	// failPayments makes payment reads and inserts fail while non-nil.
	failPayments error
}

func newMemStore(clock *testClock) *memStore {
	return &memStore{
		clock:        clock,
		userNames:    make(map[uuid.UUID]string),
		jobs:         make(map[uuid.UUID]*models.Job),
		bankAccounts: make(map[uuid.UUID]*models.BankAccount),
		assignments:  make(map[uuid.UUID]*models.Assignment),
		tokens:       make(map[uuid.UUID]*models.VerificationToken),
		payments:     make(map[uuid.UUID]*models.Payment),
		withdrawals:  make(map[uuid.UUID]*models.WithdrawalRequest),
		tasks:        make(map[uuid.UUID]*models.SettlementTask),
		userLocks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *memStore) setFailPayments(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPayments = err
}

// cloneAssignment also sends the metadata through JSON, the way the jsonb
// column stores and returns it.
func cloneAssignment(a *models.Assignment) *models.Assignment {
	c := *a
	raw, err := json.Marshal(a.Metadata)
	if err != nil {
		panic(err)
	}
	c.Metadata = models.AssignmentMetadata{}
	if err := json.Unmarshal(raw, &c.Metadata); err != nil {
		panic(err)
	}
	return &c
}

func cloneToken(t *models.VerificationToken) *models.VerificationToken {
	c := *t
	return &c
}

func cloneTask(t *models.SettlementTask) *models.SettlementTask {
	c := *t
	return &c
}

func cloneWithdrawal(w *models.WithdrawalRequest) *models.WithdrawalRequest {
	c := *w
	return &c
}

// ---------------------------------------------------------------- seeding

func (s *memStore) addCompany(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.userNames[id] = name
	return id
}

func (s *memStore) addJob(companyID uuid.UUID, hourlyRate *int64) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &models.Job{ID: uuid.New(), CompanyID: companyID, Title: "Warehouse shift", HourlyRate: hourlyRate}
	s.jobs[j.ID] = j
	return j
}

func (s *memStore) addBankAccount(userID uuid.UUID) *models.BankAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &models.BankAccount{ID: uuid.New(), UserID: userID, BankName: "Mizuho", AccountHolderName: "Worker", AccountLast4: "1234"}
	s.bankAccounts[b.ID] = b
	return b
}

func (s *memStore) putAssignment(a *models.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.RowVersion == 0 {
		a.RowVersion = 1
	}
	s.assignments[a.ID] = cloneAssignment(a)
}

func (s *memStore) putPayment(p *models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.payments[p.AssignmentID] = &c
}

func (s *memStore) putWithdrawal(w *models.WithdrawalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.RowVersion == 0 {
		w.RowVersion = 1
	}
	s.withdrawals[w.ID] = cloneWithdrawal(w)
}

func (s *memStore) paymentCount(assignmentID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[assignmentID]; ok {
		return 1
	}
	return 0
}

func (s *memStore) task(assignmentID uuid.UUID) *models.SettlementTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[assignmentID]
	if !ok {
		return nil
	}
	return cloneTask(t)
}

func (s *memStore) tokenByValue(value string) *models.VerificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == value {
			return cloneToken(t)
		}
	}
	return nil
}

func (s *memStore) unusedTokenCount(assignmentID uuid.UUID, tt models.TokenType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.AssignmentID == assignmentID && t.TokenType == tt && t.UsedAt == nil {
			n++
		}
	}
	return n
}

// enqueueLocked mirrors the settlement outbox insert. Caller holds s.mu.
func (s *memStore) enqueueLocked(assignmentID uuid.UUID) {
	now := s.clock.Now()
	if t, ok := s.tasks[assignmentID]; ok {
		if t.Status == models.SettlementTaskStatusSkipped {
			t.Status = models.SettlementTaskStatusPending
			t.LastFailureReason = nil
			t.NextAttemptAt = utils.Ptr(now.Add(2 * time.Minute))
			t.RowVersion++
			t.UpdatedAt = now
		}
		return
	}
	s.tasks[assignmentID] = &models.SettlementTask{
		Versioned:     models.Versioned{RowVersion: 1},
		ID:            uuid.New(),
		AssignmentID:  assignmentID,
		Status:        models.SettlementTaskStatusPending,
		NextAttemptAt: utils.Ptr(now.Add(2 * time.Minute)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// applyMutationLocked mirrors applyAssignmentMutationTx. Caller holds s.mu.
func (s *memStore) applyMutationLocked(id uuid.UUID, mutate func(*models.Assignment) error) (*models.Assignment, error) {
	stored, ok := s.assignments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	working := cloneAssignment(stored)
	prev := working.Status
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.RowVersion = stored.RowVersion + 1
	working.UpdatedAt = s.clock.Now()
	s.assignments[id] = working
	if working.Status != prev && working.Status.TriggersSettlement() {
		s.enqueueLocked(id)
	}
	return cloneAssignment(working), nil
}

// ---------------------------------------------------------------- assignments

type fakeAssignmentRepo struct{ s *memStore }

var _ repositories.AssignmentRepository = (*fakeAssignmentRepo)(nil)

func (r *fakeAssignmentRepo) Create(_ context.Context, a *models.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.assignments[a.ID]; ok {
		return errors.New("duplicate assignment id")
	}
	r.s.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (r *fakeAssignmentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, nil
	}
	return cloneAssignment(a), nil
}

func (r *fakeAssignmentRepo) GetActiveDeliveryForWorker(_ context.Context, workerID uuid.UUID) (*models.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *models.Assignment
	for _, a := range r.s.assignments {
		if a.WorkerID != workerID {
			continue
		}
		switch a.Status {
		case models.AssignmentStatusPendingPickup, models.AssignmentStatusPickingUp, models.AssignmentStatusInDelivery:
		default:
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, nil
	}
	return cloneAssignment(found), nil
}

func (r *fakeAssignmentRepo) TransitionAtomic(_ context.Context, id uuid.UUID, mutate func(*models.Assignment) error) (*models.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.applyMutationLocked(id, mutate)
}

// ---------------------------------------------------------------- tokens

type fakeTokenRepo struct{ s *memStore }

var _ repositories.VerificationTokenRepository = (*fakeTokenRepo)(nil)

func (r *fakeTokenRepo) IssueAtomic(_ context.Context, tok *models.VerificationToken, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.assignments[tok.AssignmentID]; !ok {
		return pgx.ErrNoRows
	}
	for _, t := range r.s.tokens {
		if t.AssignmentID == tok.AssignmentID && t.TokenType == tok.TokenType && t.UsedAt == nil {
			t.UsedAt = utils.Ptr(now)
		}
	}
	tok.CreatedAt = now
	r.s.tokens[tok.ID] = cloneToken(tok)
	return nil
}

func (r *fakeTokenRepo) GetForRedemption(_ context.Context, token string, assignmentID uuid.UUID, tokenType models.TokenType) (*models.TokenRedemption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.Token != token || t.AssignmentID != assignmentID || t.TokenType != tokenType {
			continue
		}
		a, ok := r.s.assignments[assignmentID]
		if !ok {
			return nil, nil
		}
		job, ok := r.s.jobs[a.JobID]
		if !ok {
			return nil, nil
		}
		return &models.TokenRedemption{
			Token:       cloneToken(t),
			Assignment:  cloneAssignment(a),
			CompanyName: r.s.userNames[job.CompanyID],
		}, nil
	}
	return nil, nil
}

func (r *fakeTokenRepo) RedeemAtomic(
	_ context.Context,
	tokenID, assignmentID uuid.UUID,
	usedAt time.Time,
	mutate func(*models.Assignment) error,
) (*models.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[tokenID]
	if !ok || t.AssignmentID != assignmentID || t.UsedAt != nil {
		return nil, utils.ErrTokenAlreadyUsed
	}
	a, err := r.s.applyMutationLocked(assignmentID, mutate)
	if err != nil {
		return nil, err
	}
	t.UsedAt = utils.Ptr(usedAt)
	return a, nil
}

// ---------------------------------------------------------------- payments

type fakePaymentRepo struct{ s *memStore }

var _ repositories.PaymentRepository = (*fakePaymentRepo)(nil)

func (r *fakePaymentRepo) CreateIfNotExists(_ context.Context, p *models.Payment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failPayments != nil {
		return false, r.s.failPayments
	}
	if _, ok := r.s.payments[p.AssignmentID]; ok {
		return false, nil
	}
	c := *p
	c.CreatedAt = r.s.clock.Now()
	c.UpdatedAt = c.CreatedAt
	r.s.payments[p.AssignmentID] = &c
	return true, nil
}

func (r *fakePaymentRepo) GetByAssignmentID(_ context.Context, assignmentID uuid.UUID) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failPayments != nil {
		return nil, r.s.failPayments
	}
	p, ok := r.s.payments[assignmentID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

// ---------------------------------------------------------------- ledger

type fakeLedgerRepo struct{ s *memStore }

var _ repositories.LedgerRepository = (*fakeLedgerRepo)(nil)

func (r *fakeLedgerRepo) SumSucceededPayments(_ context.Context, workerID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for assignmentID, p := range r.s.payments {
		a, ok := r.s.assignments[assignmentID]
		if ok && a.WorkerID == workerID && p.Status == models.PaymentStatusSucceeded {
			total += p.Amount
		}
	}
	return total, nil
}

func (r *fakeLedgerRepo) SumWithdrawals(_ context.Context, userID uuid.UUID, statuses []models.WithdrawalStatusType) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, w := range r.s.withdrawals {
		if w.UserID != userID {
			continue
		}
		for _, st := range statuses {
			if w.Status == st {
				total += w.Amount
				break
			}
		}
	}
	return total, nil
}

func (r *fakeLedgerRepo) WithUserLock(ctx context.Context, userID uuid.UUID, fn func(repositories.LedgerTx) error) error {
	r.s.userLocksMu.Lock()
	l, ok := r.s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.s.userLocks[userID] = l
	}
	r.s.userLocksMu.Unlock()

	l.Lock()
	defer l.Unlock()

	tx := &fakeLedgerTx{fakeLedgerRepo: r}
	if err := fn(tx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range tx.staged {
		r.s.withdrawals[w.ID] = w
	}
	return nil
}

type fakeLedgerTx struct {
	*fakeLedgerRepo
	staged []*models.WithdrawalRequest
}

func (t *fakeLedgerTx) InsertWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	now := t.s.clock.Now()
	w.RowVersion = 1
	w.CreatedAt = now
	w.UpdatedAt = now
	t.staged = append(t.staged, cloneWithdrawal(w))
	return nil
}

// ---------------------------------------------------------------- withdrawals

type fakeWithdrawalRepo struct{ s *memStore }

var _ repositories.WithdrawalRepository = (*fakeWithdrawalRepo)(nil)

func (r *fakeWithdrawalRepo) GetByID(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return nil, nil
	}
	return cloneWithdrawal(w), nil
}

func (r *fakeWithdrawalRepo) UpdateIfVersion(_ context.Context, w *models.WithdrawalRequest, expected int64) (pgconn.CommandTag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.withdrawals[w.ID]
	if !ok || cur.RowVersion != expected {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	next := cloneWithdrawal(w)
	next.RowVersion = expected + 1
	next.UpdatedAt = r.s.clock.Now()
	r.s.withdrawals[w.ID] = next
	return pgconn.CommandTag("UPDATE 1"), nil
}

func (r *fakeWithdrawalRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.WithdrawalRequest) error) error {
	return repositories.WithRetry(ctx, 3, id.String(),
		func(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
			return r.GetByID(ctx, uuid.MustParse(id))
		},
		r.UpdateIfVersion,
		mutate,
	)
}

// ---------------------------------------------------------------- lookups

type fakeJobRepo struct{ s *memStore }

func (r *fakeJobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, nil
	}
	c := *j
	return &c, nil
}

type fakeBankRepo struct{ s *memStore }

func (r *fakeBankRepo) GetByIDForOwner(_ context.Context, id, ownerID uuid.UUID) (*models.BankAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bankAccounts[id]
	if !ok || b.UserID != ownerID {
		return nil, nil
	}
	c := *b
	return &c, nil
}

// ---------------------------------------------------------------- settlement tasks

type fakeTaskRepo struct{ s *memStore }

var _ repositories.SettlementTaskRepository = (*fakeTaskRepo)(nil)

func (r *fakeTaskRepo) Enqueue(_ context.Context, assignmentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.enqueueLocked(assignmentID)
	return nil
}

func (r *fakeTaskRepo) GetByAssignmentID(_ context.Context, assignmentID uuid.UUID) (*models.SettlementTask, error) {
	return r.s.task(assignmentID), nil
}

func (r *fakeTaskRepo) getByID(_ context.Context, id string) (*models.SettlementTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tasks {
		if t.ID.String() == id {
			return cloneTask(t), nil
		}
	}
	return nil, nil
}

func (r *fakeTaskRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*models.SettlementTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.SettlementTask
	for _, t := range r.s.tasks {
		if t.Status != models.SettlementTaskStatusPending && t.Status != models.SettlementTaskStatusFailed {
			continue
		}
		if t.NextAttemptAt == nil || t.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(*out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTaskRepo) ListUnsettled(_ context.Context) ([]*models.SettlementTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.SettlementTask
	for _, t := range r.s.tasks {
		if t.Status == models.SettlementTaskStatusFailed || t.Status == models.SettlementTaskStatusSkipped {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) UpdateIfVersion(_ context.Context, t *models.SettlementTask, expected int64) (pgconn.CommandTag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.tasks[t.AssignmentID]
	if !ok || cur.ID != t.ID || cur.RowVersion != expected {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	next := cloneTask(t)
	next.RowVersion = expected + 1
	next.UpdatedAt = r.s.clock.Now()
	r.s.tasks[t.AssignmentID] = next
	return pgconn.CommandTag("UPDATE 1"), nil
}

func (r *fakeTaskRepo) UpdateWithRetry(ctx context.Context, id uuid.UUID, mutate func(*models.SettlementTask) error) error {
	return repositories.WithRetry(ctx, 3, id.String(), r.getByID, r.UpdateIfVersion, mutate)
}

// ---------------------------------------------------------------- notifier

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []*models.SettlementTask
}

func (n *recordingNotifier) NotifySettlementDeadLetter(_ context.Context, task *models.SettlementTask) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, cloneTask(task))
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tasks)
}
