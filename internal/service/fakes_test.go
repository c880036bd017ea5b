package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/repository"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory stand-in for the Postgres repositories. Writes
// honour the same guards as the SQL (guarded debit, capacity taken with the
// roster entry, unique roster entry).
type memStore struct {
	mu sync.Mutex

	tournaments  map[string]*model.Tournament
	wallets      map[string]*model.Wallet
	transactions map[string]*model.Transaction
	participants map[string]*model.Participant
	slotCounters map[string]int
	profiles     map[string]*model.Profile
	follows      map[string]*model.Follow

	failDebit     error
	failCredit    error
	failCreateTx  error
	failDeleteTx  error
	failEnroll    error
	failIncrement error
	failProfile   error

	// forceDuplicate makes Enroll report a uniqueness violation even though
	// Exists said the entry was absent, as a concurrent insert would.
	forceDuplicate bool

	writes int
	seq    int
}

func newMemStore() *memStore {
	return &memStore{
		tournaments:  map[string]*model.Tournament{},
		wallets:      map[string]*model.Wallet{},
		transactions: map[string]*model.Transaction{},
		participants: map[string]*model.Participant{},
		slotCounters: map[string]int{},
		profiles:     map[string]*model.Profile{},
		follows:      map[string]*model.Follow{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) stores() Stores {
	return Stores{
		Tournaments:  tournamentFake{s},
		Wallets:      walletFake{s},
		Transactions: transactionFake{s},
		Participants: participantFake{s},
		Profiles:     profileFake{s},
	}
}

func (s *memStore) balance(walletID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[walletID].Balance
}

func (s *memStore) transactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *memStore) participantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func rosterKey(tournamentID, participantID string) string {
	return tournamentID + "|" + participantID
}

// ─── Tournaments ─────────────────────────────────────────────────────────────

type tournamentFake struct{ s *memStore }

func (f tournamentFake) GetByID(_ context.Context, id string) (*model.Tournament, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tournaments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ─── Wallets ─────────────────────────────────────────────────────────────────

type walletFake struct{ s *memStore }

func (f walletFake) GetByUserID(_ context.Context, userID string) (*model.Wallet, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, w := range f.s.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f walletFake) Debit(ctx context.Context, walletID string, amount int64) (model.BalanceChange, error) {
	if err := ctx.Err(); err != nil {
		return model.BalanceChange{}, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failDebit != nil {
		return model.BalanceChange{}, f.s.failDebit
	}
	w := f.s.wallets[walletID]
	if w.Balance < amount {
		return model.BalanceChange{}, repository.ErrConflict
	}
	f.s.writes++
	old := w.Balance
	w.Balance -= amount
	return model.BalanceChange{OldBalance: old, NewBalance: w.Balance}, nil
}

func (f walletFake) Credit(ctx context.Context, walletID string, amount int64) (model.BalanceChange, error) {
	if err := ctx.Err(); err != nil {
		return model.BalanceChange{}, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failCredit != nil {
		return model.BalanceChange{}, f.s.failCredit
	}
	w := f.s.wallets[walletID]
	f.s.writes++
	old := w.Balance
	w.Balance += amount
	return model.BalanceChange{OldBalance: old, NewBalance: w.Balance}, nil
}

// ─── Transactions ────────────────────────────────────────────────────────────

type transactionFake struct{ s *memStore }

func (f transactionFake) Create(ctx context.Context, tx *model.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failCreateTx != nil {
		return f.s.failCreateTx
	}
	f.s.writes++
	tx.ID = f.s.nextID("tx")
	cp := *tx
	f.s.transactions[tx.ID] = &cp
	return nil
}

func (f transactionFake) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failDeleteTx != nil {
		return f.s.failDeleteTx
	}
	if _, ok := f.s.transactions[id]; !ok {
		return repository.ErrNotFound
	}
	f.s.writes++
	delete(f.s.transactions, id)
	return nil
}

// ─── Participants ────────────────────────────────────────────────────────────

type participantFake struct{ s *memStore }

func (f participantFake) Exists(_ context.Context, tournamentID, participantID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	_, ok := f.s.participants[rosterKey(tournamentID, participantID)]
	return ok, nil
}

func (f participantFake) Enroll(ctx context.Context, p *model.Participant, units int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failEnroll != nil {
		return 0, f.s.failEnroll
	}
	key := rosterKey(p.TournamentID, p.ParticipantID)
	if _, ok := f.s.participants[key]; ok || f.s.forceDuplicate {
		return 0, repository.ErrDuplicate
	}
	t, ok := f.s.tournaments[p.TournamentID]
	if !ok || t.SlotsLeft < units {
		return 0, repository.ErrConflict
	}
	f.s.writes++
	t.SlotsLeft -= units
	f.s.slotCounters[p.TournamentID]++
	p.ID = f.s.nextID("participant")
	p.SlotNumber = f.s.slotCounters[p.TournamentID]
	cp := *p
	f.s.participants[key] = &cp
	return t.SlotsLeft, nil
}

// ─── Profiles ────────────────────────────────────────────────────────────────

type profileFake struct{ s *memStore }

func (f profileFake) GetByID(_ context.Context, id string) (*model.Profile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failProfile != nil {
		return nil, f.s.failProfile
	}
	p, ok := f.s.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f profileFake) IncrementTournamentsPlayed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failIncrement != nil {
		return f.s.failIncrement
	}
	p, ok := f.s.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.s.writes++
	p.TournamentsPlayed++
	return nil
}

// ─── Follows ─────────────────────────────────────────────────────────────────

type followFake struct{ s *memStore }

func (f followFake) Exists(_ context.Context, followerID, followingID string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	_, ok := f.s.follows[followerID+"|"+followingID]
	return ok, nil
}

func (f followFake) Create(_ context.Context, fl *model.Follow) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := fl.FollowerID + "|" + fl.FollowingID
	if _, ok := f.s.follows[key]; ok {
		return repository.ErrDuplicate
	}
	f.s.writes++
	fl.ID = f.s.nextID("follow")
	fl.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cp := *fl
	f.s.follows[key] = &cp
	return nil
}

// ─── Notifier ────────────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.NewNotification
}

func (n *recordingNotifier) Notify(_ context.Context, note model.NewNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) all() []model.NewNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.NewNotification(nil), n.sent...)
}

type listerFake struct {
	got  model.NotificationFilter
	page *model.NotificationPage
	err  error
}

func (l *listerFake) List(_ context.Context, _ string, f model.NotificationFilter) (*model.NotificationPage, error) {
	l.got = f
	return l.page, l.err
}
