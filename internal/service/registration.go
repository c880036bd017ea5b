package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/metrics"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultTeamName = "Squad Team"

// Stores bundles the collaborators the Coordinator writes through.
type Stores struct {
	Tournaments  TournamentStore
	Wallets      WalletStore
	Transactions TransactionStore
	Participants ParticipantStore
	Profiles     ProfileStore
}

// Coordinator registers accounts for tournaments. It decides eligibility from
// a read-only snapshot, then drives the commit sequence and undoes the binding
// steps when a later one fails.
type Coordinator struct {
	stores   Stores
	notifier Notifier
	log      *logger.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewCoordinator constructs a Coordinator with its dependencies.
func NewCoordinator(stores Stores, notifier Notifier, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		stores:   stores,
		notifier: notifier,
		log:      log.Named("registration"),
		metrics:  m,
		tracer:   otel.Tracer("github.com/glenn-app/glenn-backend/internal/service"),
		now:      time.Now,
	}
}

// eligibility is the snapshot a commit starts from.
type eligibility struct {
	tournament *model.Tournament
	wallet     *model.Wallet
	units      int
}

// Register validates req on behalf of callerID and, if eligible, commits the
// registration. Once the debit has been issued the sequence runs to
// completion or compensation even if ctx is cancelled.
func (c *Coordinator) Register(ctx context.Context, callerID string, req model.ParticipateRequest) (*model.Registration, error) {
	req.TournamentID = strings.TrimSpace(req.TournamentID)
	if req.TournamentID == "" {
		return nil, reject(ErrInvalidRequest, "tournament_id is required")
	}

	elig, err := c.checkEligibility(ctx, callerID, req)
	if err != nil {
		c.metrics.RegistrationOutcome(outcomeLabel(err))
		return nil, err
	}

	commitCtx := context.WithoutCancel(ctx)
	start := time.Now()
	reg, err := c.commit(commitCtx, req, elig)
	c.metrics.ObserveRegistration(time.Since(start))
	c.metrics.RegistrationOutcome(outcomeLabel(err))
	if err != nil {
		return nil, err
	}

	c.notifier.Notify(commitCtx, model.NewNotification{
		UserID:  req.UserID,
		Type:    model.NotificationTournamentRegistration,
		Title:   "Registration Successful! 🎮",
		Message: "You are registered for " + elig.tournament.Name,
		Data: map[string]any{
			"tournament_id":   reg.TournamentID,
			"tournament_name": elig.tournament.Name,
			"participant_id":  reg.ParticipantID,
			"slot_number":     reg.SlotNumber,
		},
	})

	return reg, nil
}

// checkEligibility runs the pre-commit checks in order. It performs no writes.
func (c *Coordinator) checkEligibility(ctx context.Context, callerID string, req model.ParticipateRequest) (*eligibility, error) {
	if callerID == "" || callerID != req.UserID || callerID != req.ParticipantID {
		return nil, ErrIdentityMismatch
	}

	if uuid.Validate(req.TournamentID) != nil {
		return nil, reject(ErrTournamentNotFound, "the specified tournament does not exist")
	}
	tour, err := c.stores.Tournaments.GetByID(ctx, req.TournamentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ErrTournamentNotFound, "the specified tournament does not exist")
		}
		return nil, fmt.Errorf("get tournament: %w", err)
	}

	if req.Amount != tour.EntryFee {
		return nil, reject(ErrInvalidAmount, "entry fee should be %d", tour.EntryFee)
	}

	if tour.HasStarted(c.now()) {
		return nil, reject(ErrTournamentStarted, "cannot register for a tournament that has already started")
	}

	units := tour.Format.RequiredUnits(req.TeamSize())
	if tour.SlotsLeft < units {
		return nil, reject(ErrInsufficientSlots,
			"not enough slots available. Required: %d, Available: %d", units, tour.SlotsLeft)
	}

	exists, err := c.stores.Participants.Exists(ctx, req.TournamentID, req.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("check existing registration: %w", err)
	}
	if exists {
		return nil, reject(ErrAlreadyRegistered, "you are already registered for this tournament")
	}

	wallet, err := c.stores.Wallets.GetByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ErrWalletNotFound, "user wallet does not exist")
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	if wallet.Balance < req.Amount {
		return nil, reject(ErrInsufficientBalance,
			"insufficient funds in wallet. Required: %d, Available: %d", req.Amount, wallet.Balance)
	}

	return &eligibility{tournament: tour, wallet: wallet, units: units}, nil
}

// ─── Commit sequence ─────────────────────────────────────────────────────────

// registrationCommit is one run of the commit state machine.
type registrationCommit struct {
	c    *Coordinator
	m    *commitMachine
	log  *zap.Logger
	req  model.ParticipateRequest
	elig *eligibility

	balance        model.BalanceChange
	tx             *model.Transaction
	participant    *model.Participant
	slotsRemaining int
}

func (c *Coordinator) commit(ctx context.Context, req model.ParticipateRequest, elig *eligibility) (*model.Registration, error) {
	ctx, span := c.tracer.Start(ctx, "registration.commit", trace.WithAttributes(
		attribute.String("tournament.id", req.TournamentID),
		attribute.String("participant.id", req.ParticipantID),
		attribute.Int("capacity.units", elig.units),
	))
	defer span.End()

	rc := &registrationCommit{
		c:    c,
		m:    newCommitMachine(),
		log:  c.log.WithContext(ctx).With(zap.String("tournament_id", req.TournamentID), zap.String("participant_id", req.ParticipantID)),
		req:  req,
		elig: elig,
	}

	reg, err := rc.run(ctx)
	span.SetAttributes(attribute.String("registration.state", string(rc.m.state)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return reg, nil
}

func (rc *registrationCommit) run(ctx context.Context) (*model.Registration, error) {
	steps := []struct {
		to   CommitState
		step func(context.Context) error
	}{
		{StateDebited, rc.debit},
		{StateTransactionLogged, rc.logTransaction},
		{StateEnrolled, rc.enroll},
	}
	for _, s := range steps {
		if err := s.step(ctx); err != nil {
			return nil, rc.abort(ctx, err)
		}
		if err := rc.m.transition(s.to); err != nil {
			return nil, rc.abort(ctx, err)
		}
	}

	// Enrollment took the capacity in the same write. What follows is
	// bookkeeping and never aborts.
	_ = rc.m.transition(StateSlotDecremented)
	rc.recordTournamentPlayed(ctx)
	_ = rc.m.transition(StateDone)

	rc.log.Info("registration committed",
		zap.Int("slot_number", rc.participant.SlotNumber),
		zap.Int64("new_balance", rc.balance.NewBalance),
	)

	return &model.Registration{
		ParticipantID:    rc.participant.ID,
		TournamentID:     rc.req.TournamentID,
		TransactionID:    rc.tx.ID,
		FeePaid:          rc.req.Amount,
		TeamName:         rc.participant.TeamName,
		SlotNumber:       rc.participant.SlotNumber,
		SlotsRemaining:   rc.slotsRemaining,
		NewWalletBalance: rc.balance.NewBalance,
	}, nil
}

func (rc *registrationCommit) debit(ctx context.Context) error {
	change, err := rc.c.stores.Wallets.Debit(ctx, rc.elig.wallet.ID, rc.req.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return reject(ErrInsufficientBalance, "insufficient funds in wallet. Required: %d", rc.req.Amount)
		}
		return &StepError{Step: StateDebited, Err: err}
	}
	rc.balance = change
	return nil
}

func (rc *registrationCommit) logTransaction(ctx context.Context) error {
	tournamentID := rc.req.TournamentID
	tx := &model.Transaction{
		UserID:       rc.req.UserID,
		WalletID:     rc.elig.wallet.ID,
		Amount:       -rc.req.Amount,
		Type:         model.TransactionTypeTournamentFee,
		TournamentID: &tournamentID,
		OldBalance:   rc.balance.OldBalance,
		NewBalance:   rc.balance.NewBalance,
		CreatedAt:    rc.c.now().UTC(),
	}
	if err := rc.c.stores.Transactions.Create(ctx, tx); err != nil {
		return &StepError{Step: StateTransactionLogged, Err: err}
	}
	rc.tx = tx
	return nil
}

func (rc *registrationCommit) enroll(ctx context.Context) error {
	p := &model.Participant{
		TournamentID:  rc.req.TournamentID,
		ParticipantID: rc.req.ParticipantID,
		TeamMembers:   rc.req.TeamMembers,
		TeamName:      teamName(rc.elig.tournament.Format, rc.req.TeamName),
		FeePaid:       rc.req.Amount,
		TransactionID: rc.tx.ID,
		CreatedAt:     rc.c.now().UTC(),
	}
	if p.TeamMembers == nil {
		p.TeamMembers = model.TeamMembers{}
	}
	remaining, err := rc.c.stores.Participants.Enroll(ctx, p, rc.elig.units)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return reject(ErrAlreadyRegistered, "you are already registered for this tournament")
		case errors.Is(err, repository.ErrConflict):
			return reject(ErrInsufficientSlots, "not enough slots available. Required: %d", rc.elig.units)
		}
		return &StepError{Step: StateEnrolled, Err: err}
	}
	rc.participant = p
	rc.slotsRemaining = remaining
	return nil
}

func (rc *registrationCommit) recordTournamentPlayed(ctx context.Context) {
	if err := rc.c.stores.Profiles.IncrementTournamentsPlayed(ctx, rc.req.UserID); err != nil {
		rc.c.metrics.BestEffortFailure("tournaments_played")
		rc.log.Warn("tournaments played update failed", zap.Error(err))
	}
}

// abort undoes every binding step reached so far, newest first, and returns
// cause unchanged. Compensation failures are logged and counted only.
func (rc *registrationCommit) abort(ctx context.Context, cause error) error {
	if rc.m.reached(StateTransactionLogged) {
		err := rc.c.stores.Transactions.Delete(ctx, rc.tx.ID)
		rc.c.metrics.Compensation("delete_transaction", err == nil)
		if err != nil {
			rc.log.Error("compensation failed: orphaned transaction record",
				zap.String("transaction_id", rc.tx.ID),
				zap.Error(err),
			)
		}
	}

	if rc.m.reached(StateDebited) {
		_, err := rc.c.stores.Wallets.Credit(ctx, rc.elig.wallet.ID, rc.req.Amount)
		rc.c.metrics.Compensation("refund_wallet", err == nil)
		if err != nil {
			rc.log.Error("compensation failed: wallet not refunded",
				zap.String("wallet_id", rc.elig.wallet.ID),
				zap.Int64("amount", rc.req.Amount),
				zap.Error(err),
			)
		}
	}

	from := rc.m.state
	_ = rc.m.transition(StateAborted)
	rc.log.Warn("registration aborted", zap.String("from_state", string(from)), zap.Error(cause))
	return cause
}

// teamName applies the default for team formats. Solo entries carry none.
func teamName(format model.Format, requested *string) *string {
	if format == model.FormatSolo {
		return nil
	}
	if requested != nil && strings.TrimSpace(*requested) != "" {
		name := strings.TrimSpace(*requested)
		return &name
	}
	name := defaultTeamName
	return &name
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrTournamentNotFound), errors.Is(err, ErrWalletNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrTournamentStarted):
		return "started"
	case errors.Is(err, ErrInsufficientSlots):
		return "insufficient_slots"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "error"
	}
}
