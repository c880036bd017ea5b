package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const participantUniqueConstraint = "tournament_participants_unique"

// ParticipantRepository handles persistence for tournament rosters.
type ParticipantRepository struct {
	db *pgxpool.Pool
}

// NewParticipantRepository constructs a ParticipantRepository.
func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Exists reports whether participantID already holds an entry in the tournament.
func (r *ParticipantRepository) Exists(ctx context.Context, tournamentID, participantID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM tournament_participants
		   WHERE tournament_id = $1 AND participant_id = $2
		 )`,
		tournamentID, participantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

// Enroll takes units of remaining capacity from the tournament, inserts a
// roster entry and assigns its slot number, all in one statement. It returns
// the capacity left afterwards.
//
// The capacity guard and the slot counter row locks order concurrent
// enrollments, so a tournament is never oversold. The slot number comes from
// a per-tournament counter; when any part fails the whole statement rolls
// back, so neither capacity nor numbers leak. A counter seen for the first
// time starts after the highest slot already on the roster.
//
// ErrConflict is returned when fewer than units remain and ErrDuplicate when
// the participant is already enrolled.
func (r *ParticipantRepository) Enroll(ctx context.Context, p *model.Participant, units int) (int, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	members := p.TeamMembers
	if members == nil {
		members = model.TeamMembers{}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return 0, fmt.Errorf("encode team members: %w", err)
	}

	var remaining int
	err = r.db.QueryRow(ctx,
		`WITH capacity AS (
		   UPDATE tournaments
		   SET slotsleft = slotsleft - $9
		   WHERE id = $2 AND slotsleft >= $9
		   RETURNING slotsleft
		 ), slot AS (
		   INSERT INTO tournament_slot_counters (tournament_id, last_slot)
		   SELECT $2, (SELECT COALESCE(MAX(slot_number), 0) + 1
		               FROM tournament_participants WHERE tournament_id = $2)
		   FROM capacity
		   ON CONFLICT (tournament_id)
		   DO UPDATE SET last_slot = tournament_slot_counters.last_slot + 1
		   RETURNING last_slot
		 )
		 INSERT INTO tournament_participants
		   (id, tournament_id, participant_id, team_members, team_name, fee_paid,
		    transaction_id, slot_number, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7, slot.last_slot, $8
		 FROM slot
		 RETURNING slot_number, (SELECT slotsleft FROM capacity)`,
		p.ID, p.TournamentID, p.ParticipantID, membersJSON, p.TeamName, p.FeePaid,
		p.TransactionID, p.CreatedAt, units,
	).Scan(&p.SlotNumber, &remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrConflict
		}
		if uniqueViolationOn(err, participantUniqueConstraint) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert participant: %w", err)
	}
	return remaining, nil
}
