package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/makazi/core"
	"github.com/trezcool/makazi/core/room"
)

const (
	selectRoom = `
SELECT id, number, capacity, created_at, updated_at
FROM room`

	selectAllocation = `
SELECT id, student_id, room_id, start_date, end_date
FROM allocation`
)

type roomRow struct {
	ID        string    `db:"id"`
	Number    string    `db:"number"`
	Capacity  int       `db:"capacity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r roomRow) unpack() room.Room {
	return room.Room{
		ID:        r.ID,
		Number:    r.Number,
		Capacity:  r.Capacity,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type allocationRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	RoomID    string    `db:"room_id"`
	StartDate time.Time `db:"start_date"`
	EndDate   null.Time `db:"end_date"`
}

func (r allocationRow) unpack() room.Allocation {
	alloc := room.Allocation{
		ID:        r.ID,
		StudentID: r.StudentID,
		RoomID:    r.RoomID,
		StartDate: r.StartDate.UTC(),
	}
	if r.EndDate.Valid {
		end := r.EndDate.Time.UTC()
		alloc.EndDate = &end
	}
	return alloc
}

type allocationDetailRow struct {
	allocationRow
	StudentName  string `db:"student_name"`
	StudentEmail string `db:"student_email"`
	RoomNumber   string `db:"room_number"`
}

type roomRepository struct {
	db *sqlx.DB
}

var _ room.Repository = (*roomRepository)(nil) // interface compliance check

func NewRoomRepository(db *sqlx.DB) *roomRepository {
	return &roomRepository{db: db}
}

func (repo roomRepository) Atomic(ctx context.Context, fn func(tx core.DBExecutor) error) error {
	return atomic(ctx, repo.db, fn)
}

func (repo roomRepository) CheckNumberUniqueness(ctx context.Context, number string, excludedRooms ...room.Room) error {
	exclIDs := make([]string, 0, len(excludedRooms))
	for _, rm := range excludedRooms {
		exclIDs = append(exclIDs, rm.ID)
	}

	var exists bool
	const q = `SELECT EXISTS(SELECT 1 FROM room WHERE LOWER(number) = LOWER($1) AND id <> ALL($2::uuid[]))`
	if err := repo.db.QueryRowContext(ctx, q, number, pq.Array(exclIDs)).Scan(&exists); err != nil {
		return errors.Wrap(err, "checking room uniqueness")
	}
	if exists {
		return room.ErrRoomExists
	}
	return nil
}

func (repo roomRepository) CreateRoom(ctx context.Context, rm room.Room) (room.Room, error) {
	rm.ID = uuid.New().String()

	const q = `
INSERT INTO room (id, number, capacity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.db.ExecContext(ctx, q, rm.ID, rm.Number, rm.Capacity, rm.CreatedAt.UTC(), rm.UpdatedAt.UTC())
	if err != nil {
		return room.Room{}, errors.Wrap(err, "inserting room")
	}
	return rm, nil
}

func (repo roomRepository) getRoom(ctx context.Context, q string, arg interface{}, exec []core.DBExecutor) (room.Room, error) {
	var row roomRow
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, errors.Wrap(err, "getting room")
	}
	return row.unpack(), nil
}

func (repo roomRepository) GetRoomByID(ctx context.Context, id string, exec ...core.DBExecutor) (room.Room, error) {
	return repo.getRoom(ctx, selectRoom+" WHERE id = $1", id, exec)
}

func (repo roomRepository) GetRoomByNumber(ctx context.Context, number string) (room.Room, error) {
	return repo.getRoom(ctx, selectRoom+" WHERE LOWER(number) = LOWER($1)", number, nil)
}

func (repo roomRepository) LockRoom(ctx context.Context, id string, exec ...core.DBExecutor) (room.Room, error) {
	return repo.getRoom(ctx, selectRoom+" WHERE id = $1 FOR UPDATE", id, exec)
}

func (repo roomRepository) QueryAllRooms(ctx context.Context, exec ...core.DBExecutor) ([]room.Room, error) {
	var rows []roomRow
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, selectRoom+" ORDER BY number ASC"); err != nil {
		return nil, errors.Wrap(err, "querying rooms")
	}
	rooms := make([]room.Room, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, r.unpack())
	}
	return rooms, nil
}

func (repo roomRepository) UpdateRoom(ctx context.Context, rm room.Room, exec ...core.DBExecutor) (room.Room, error) {
	const q = `
UPDATE room
SET number = $2, capacity = $3, updated_at = $4
WHERE id = $1
RETURNING id, number, capacity, created_at, updated_at`

	var row roomRow
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, rm.ID, rm.Number, rm.Capacity, rm.UpdatedAt.UTC()); err != nil {
		if err == sql.ErrNoRows {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, errors.Wrap(err, "updating room")
	}
	return row.unpack(), nil
}

func (repo roomRepository) DeleteRoomsByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM room WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting rooms")
	}
	return nil
}

func (repo roomRepository) CountOpenAllocations(ctx context.Context, roomID string, exec ...core.DBExecutor) (int, error) {
	var count int
	const q = `SELECT COUNT(*) FROM allocation WHERE room_id = $1 AND end_date IS NULL`
	if err := getExec(repo.db, exec).QueryRowxContext(ctx, q, roomID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "counting open allocations")
	}
	return count, nil
}

func (repo roomRepository) GetOpenAllocation(ctx context.Context, studentID string, exec ...core.DBExecutor) (room.Allocation, error) {
	var row allocationRow
	const q = selectAllocation + " WHERE student_id = $1 AND end_date IS NULL"
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, q, studentID); err != nil {
		if err == sql.ErrNoRows {
			return room.Allocation{}, room.ErrNotAllocated
		}
		return room.Allocation{}, errors.Wrap(err, "getting open allocation")
	}
	return row.unpack(), nil
}

func (repo roomRepository) CreateAllocation(ctx context.Context, alloc room.Allocation, exec ...core.DBExecutor) (room.Allocation, error) {
	alloc.ID = uuid.New().String()

	const q = `
INSERT INTO allocation (id, student_id, room_id, start_date)
VALUES ($1, $2, $3, $4)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q, alloc.ID, alloc.StudentID, alloc.RoomID, alloc.StartDate.UTC())
	if err != nil {
		return room.Allocation{}, errors.Wrap(err, "inserting allocation")
	}
	return alloc, nil
}

func (repo roomRepository) CloseAllocation(ctx context.Context, alloc room.Allocation, endDate time.Time, exec ...core.DBExecutor) error {
	const q = `UPDATE allocation SET end_date = $2 WHERE id = $1 AND end_date IS NULL`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, q, alloc.ID, endDate.UTC()); err != nil {
		return errors.Wrap(err, "closing allocation")
	}
	return nil
}

func (repo roomRepository) QueryOpenAllocations(ctx context.Context, roomID string) ([]room.AllocationDetail, error) {
	q := `
SELECT a.id, a.student_id, a.room_id, a.start_date, a.end_date,
       s.name AS student_name, s.email AS student_email, r.number AS room_number
FROM allocation a
         JOIN student s ON s.id = a.student_id
         JOIN room r ON r.id = a.room_id
WHERE a.end_date IS NULL`
	var args []interface{}
	if roomID != "" {
		q += " AND a.room_id = $1"
		args = append(args, roomID)
	}
	q += " ORDER BY r.number ASC, s.name ASC"

	var rows []allocationDetailRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying open allocations")
	}
	details := make([]room.AllocationDetail, 0, len(rows))
	for _, r := range rows {
		details = append(details, room.AllocationDetail{
			Allocation:   r.unpack(),
			StudentName:  r.StudentName,
			StudentEmail: r.StudentEmail,
			RoomNumber:   r.RoomNumber,
		})
	}
	return details, nil
}
