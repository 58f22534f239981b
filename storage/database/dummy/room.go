package dummydb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/makazi/core"
	"github.com/trezcool/makazi/core/room"
)

type roomRepository struct {
	db         *DB
	rooms      *roomTable
	allocs     *allocationTable
	atomicLock sync.Mutex
}

var _ room.Repository = (*roomRepository)(nil) // interface compliance check

func NewRoomRepository(db *DB) *roomRepository {
	return &roomRepository{db: db, rooms: db.room, allocs: db.allocation}
}

// Atomic serializes atomic blocks and restores the room and allocation
// tables when fn fails, mimicking a transaction rollback.
func (repo *roomRepository) Atomic(ctx context.Context, fn func(tx core.DBExecutor) error) error {
	repo.atomicLock.Lock()
	defer repo.atomicLock.Unlock()

	rooms, allocs := repo.db.snapshotAllocations()
	if err := fn(nil); err != nil {
		repo.db.restoreAllocations(rooms, allocs)
		return err
	}
	return nil
}

func (repo *roomRepository) query() []room.Room {
	rooms := make([]room.Room, 0, len(repo.rooms.table))
	for _, rm := range repo.rooms.table {
		rooms = append(rooms, *rm)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Number < rooms[j].Number })
	return rooms
}

func (repo *roomRepository) CheckNumberUniqueness(ctx context.Context, number string, excludedRooms ...room.Room) error {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	exclIDs := make([]string, 0, len(excludedRooms))
	for _, rm := range excludedRooms {
		exclIDs = append(exclIDs, rm.ID)
	}

	for _, rm := range repo.query() {
		if containsID(rm.ID, exclIDs) {
			continue
		}
		if strings.EqualFold(rm.Number, number) {
			return room.ErrRoomExists
		}
	}
	return nil
}

func (repo *roomRepository) CreateRoom(ctx context.Context, rm room.Room) (room.Room, error) {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	rm.ID = uuid.New().String()
	repo.rooms.table[rm.ID] = &rm
	return rm, nil
}

func (repo *roomRepository) GetRoomByID(ctx context.Context, id string, exec ...core.DBExecutor) (room.Room, error) {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	if rm, ok := repo.rooms.table[id]; ok {
		return *rm, nil
	}
	return room.Room{}, room.ErrNotFound
}

func (repo *roomRepository) GetRoomByNumber(ctx context.Context, number string) (room.Room, error) {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	for _, rm := range repo.query() {
		if strings.EqualFold(rm.Number, number) {
			return rm, nil
		}
	}
	return room.Room{}, room.ErrNotFound
}

// LockRoom is a plain read; atomic blocks are already serialized.
func (repo *roomRepository) LockRoom(ctx context.Context, id string, exec ...core.DBExecutor) (room.Room, error) {
	return repo.GetRoomByID(ctx, id, exec...)
}

func (repo *roomRepository) QueryAllRooms(ctx context.Context, exec ...core.DBExecutor) ([]room.Room, error) {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()
	return repo.query(), nil
}

func (repo *roomRepository) UpdateRoom(ctx context.Context, rm room.Room, exec ...core.DBExecutor) (room.Room, error) {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	if _, ok := repo.rooms.table[rm.ID]; !ok {
		return room.Room{}, room.ErrNotFound
	}
	repo.rooms.table[rm.ID] = &rm
	return rm, nil
}

func (repo *roomRepository) DeleteRoomsByID(ctx context.Context, ids ...string) error {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()
	for _, id := range ids {
		delete(repo.rooms.table, id)
	}
	return nil
}

func (repo *roomRepository) CountOpenAllocations(ctx context.Context, roomID string, exec ...core.DBExecutor) (int, error) {
	repo.allocs.RLock()
	defer repo.allocs.RUnlock()

	var count int
	for _, alloc := range repo.allocs.table {
		if alloc.RoomID == roomID && alloc.Open() {
			count++
		}
	}
	return count, nil
}

func (repo *roomRepository) GetOpenAllocation(ctx context.Context, studentID string, exec ...core.DBExecutor) (room.Allocation, error) {
	repo.allocs.RLock()
	defer repo.allocs.RUnlock()

	for _, alloc := range repo.allocs.table {
		if alloc.StudentID == studentID && alloc.Open() {
			return *alloc, nil
		}
	}
	return room.Allocation{}, room.ErrNotAllocated
}

func (repo *roomRepository) CreateAllocation(ctx context.Context, alloc room.Allocation, exec ...core.DBExecutor) (room.Allocation, error) {
	repo.allocs.Lock()
	defer repo.allocs.Unlock()

	alloc.ID = uuid.New().String()
	repo.allocs.table[alloc.ID] = &alloc
	return alloc, nil
}

func (repo *roomRepository) CloseAllocation(ctx context.Context, alloc room.Allocation, endDate time.Time, exec ...core.DBExecutor) error {
	repo.allocs.Lock()
	defer repo.allocs.Unlock()

	orig, ok := repo.allocs.table[alloc.ID]
	if !ok || !orig.Open() {
		return nil
	}
	end := endDate.UTC()
	orig.EndDate = &end
	return nil
}

func (repo *roomRepository) QueryOpenAllocations(ctx context.Context, roomID string) ([]room.AllocationDetail, error) {
	repo.allocs.RLock()
	defer repo.allocs.RUnlock()

	var details []room.AllocationDetail
	for _, alloc := range repo.allocs.table {
		if !alloc.Open() || (roomID != "" && alloc.RoomID != roomID) {
			continue
		}
		detail := room.AllocationDetail{Allocation: *alloc}

		repo.db.student.RLock()
		if std, ok := repo.db.student.table[alloc.StudentID]; ok {
			detail.StudentName = std.Name
			detail.StudentEmail = std.Email
		}
		repo.db.student.RUnlock()

		repo.rooms.RLock()
		if rm, ok := repo.rooms.table[alloc.RoomID]; ok {
			detail.RoomNumber = rm.Number
		}
		repo.rooms.RUnlock()

		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].RoomNumber < details[j].RoomNumber })
	return details, nil
}
