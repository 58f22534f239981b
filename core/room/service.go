package room

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core"
)

var (
	// errors
	ErrNotFound       = errors.New("room not found")
	ErrRoomExists     = errors.New("a room with this number already exists")
	ErrRoomFull       = errors.New("room is already at full capacity")
	ErrNoCapacity     = errors.New("no room with free capacity left")
	ErrNotAllocated   = errors.New("student is not allocated to any room")
	ErrRoomOccupied   = errors.New("room still has students allocated to it")
	ErrCapacityTooLow = errors.New("capacity cannot be lower than current occupancy")
)

type (
	// Repository is the Room + Allocation store. The allocation table is the
	// ground truth for occupancy: implementations must derive occupied counts
	// from open allocation rows on every call, never from a stored counter.
	Repository interface {
		// Atomic runs fn within a single transaction; the passed executor must
		// be forwarded to every repository call made inside fn.
		Atomic(ctx context.Context, fn func(tx core.DBExecutor) error) error

		CheckNumberUniqueness(ctx context.Context, number string, excludedRooms ...Room) error
		CreateRoom(ctx context.Context, rm Room) (Room, error)
		GetRoomByID(ctx context.Context, id string, exec ...core.DBExecutor) (Room, error)
		GetRoomByNumber(ctx context.Context, number string) (Room, error)
		// LockRoom fetches the room and locks its row until the surrounding
		// transaction ends, serializing concurrent capacity checks.
		LockRoom(ctx context.Context, id string, exec ...core.DBExecutor) (Room, error)
		// QueryAllRooms returns all rooms ordered by number ascending.
		QueryAllRooms(ctx context.Context, exec ...core.DBExecutor) ([]Room, error)
		UpdateRoom(ctx context.Context, rm Room, exec ...core.DBExecutor) (Room, error)
		DeleteRoomsByID(ctx context.Context, ids ...string) error

		CountOpenAllocations(ctx context.Context, roomID string, exec ...core.DBExecutor) (int, error)
		GetOpenAllocation(ctx context.Context, studentID string, exec ...core.DBExecutor) (Allocation, error)
		CreateAllocation(ctx context.Context, alloc Allocation, exec ...core.DBExecutor) (Allocation, error)
		CloseAllocation(ctx context.Context, alloc Allocation, endDate time.Time, exec ...core.DBExecutor) error
		// QueryOpenAllocations returns open allocations joined with student
		// and room info; roomID scopes to one room when non-empty.
		QueryOpenAllocations(ctx context.Context, roomID string) ([]AllocationDetail, error)
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

func (svc *Service) CheckNumberUniqueness(ctx context.Context, number string, exclRooms ...Room) error {
	if err := svc.repo.CheckNumberUniqueness(ctx, number, exclRooms...); err != nil {
		if errors.Cause(err) == ErrRoomExists {
			return core.NewValidationError(err, core.FieldError{Field: "number", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nr NewRoom) (Room, error) {
	capacity := nr.Capacity
	if capacity == 0 {
		capacity = svc.conf.DefaultRoomCapacity
	}
	now := time.Now().UTC()
	rm := Room{
		Number:    nr.Number,
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateRoom(ctx, rm)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Room, error) {
	return svc.repo.GetRoomByID(ctx, id)
}

func (svc *Service) GetByNumber(ctx context.Context, number string) (Room, error) {
	return svc.repo.GetRoomByNumber(ctx, core.CleanString(number))
}

// QueryAll returns all rooms with their occupancy derived from open allocations.
func (svc *Service) QueryAll(ctx context.Context) ([]Occupancy, error) {
	return svc.queryOccupancies(ctx, false)
}

// QueryAvailable returns only the rooms with free capacity left.
func (svc *Service) QueryAvailable(ctx context.Context) ([]Occupancy, error) {
	return svc.queryOccupancies(ctx, true)
}

func (svc *Service) queryOccupancies(ctx context.Context, availableOnly bool) ([]Occupancy, error) {
	rooms, err := svc.repo.QueryAllRooms(ctx)
	if err != nil {
		return nil, err
	}
	occs := make([]Occupancy, 0, len(rooms))
	for _, rm := range rooms {
		occupied, err := svc.repo.CountOpenAllocations(ctx, rm.ID)
		if err != nil {
			return nil, err
		}
		if availableOnly && occupied >= rm.Capacity {
			continue
		}
		occs = append(occs, Occupancy{Room: rm, Occupied: occupied, Vacant: rm.Capacity - occupied})
	}
	return occs, nil
}

// Update modifies a room; lowering capacity below the current derived
// occupancy is rejected.
func (svc *Service) Update(ctx context.Context, orig Room, ur UpdateRoom) (Room, error) {
	rm := orig
	rm.Number = ur.Number
	rm.UpdatedAt = time.Now().UTC()

	if ur.Capacity == nil || *ur.Capacity == orig.Capacity {
		if ur.Capacity != nil {
			rm.Capacity = *ur.Capacity
		}
		return svc.repo.UpdateRoom(ctx, rm)
	}

	rm.Capacity = *ur.Capacity
	err := svc.repo.Atomic(ctx, func(tx core.DBExecutor) error {
		if _, err := svc.repo.LockRoom(ctx, orig.ID, tx); err != nil {
			return err
		}
		occupied, err := svc.repo.CountOpenAllocations(ctx, orig.ID, tx)
		if err != nil {
			return err
		}
		if rm.Capacity < occupied {
			return ErrCapacityTooLow
		}
		rm, err = svc.repo.UpdateRoom(ctx, rm, tx)
		return err
	})
	return rm, err
}

// Delete removes rooms; a room holding open allocations is never deleted.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		occupied, err := svc.repo.CountOpenAllocations(ctx, id)
		if err != nil {
			return err
		}
		if occupied > 0 {
			return ErrRoomOccupied
		}
	}
	return svc.repo.DeleteRoomsByID(ctx, ids...)
}

// Allocate assigns a student to a room. An empty roomID picks the first room
// (by number ascending) with free capacity. A student holding an open
// allocation is reassigned: the old allocation is closed and the new one
// opened within the same transaction, so a failed capacity check leaves the
// previous allocation untouched.
func (svc *Service) Allocate(ctx context.Context, studentID, roomID string) (Allocation, error) {
	var alloc Allocation
	err := svc.repo.Atomic(ctx, func(tx core.DBExecutor) error {
		now := time.Now().UTC()

		// close the previous allocation first: its seat must not count
		// against the target room's capacity.
		prev, err := svc.repo.GetOpenAllocation(ctx, studentID, tx)
		if err != nil && errors.Cause(err) != ErrNotAllocated {
			return err
		}
		if err == nil {
			if err = svc.repo.CloseAllocation(ctx, prev, now, tx); err != nil {
				return err
			}
		}

		var rm Room
		if roomID != "" {
			if rm, err = svc.repo.LockRoom(ctx, roomID, tx); err != nil {
				return err
			}
			occupied, err := svc.repo.CountOpenAllocations(ctx, rm.ID, tx)
			if err != nil {
				return err
			}
			if occupied >= rm.Capacity {
				return ErrRoomFull
			}
		} else {
			if rm, err = svc.firstAvailableRoom(ctx, tx); err != nil {
				return err
			}
		}

		alloc, err = svc.repo.CreateAllocation(ctx, Allocation{
			StudentID: studentID,
			RoomID:    rm.ID,
			StartDate: now,
		}, tx)
		return err
	})
	if err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func (svc *Service) firstAvailableRoom(ctx context.Context, tx core.DBExecutor) (Room, error) {
	rooms, err := svc.repo.QueryAllRooms(ctx, tx)
	if err != nil {
		return Room{}, err
	}
	for _, rm := range rooms {
		if _, err = svc.repo.LockRoom(ctx, rm.ID, tx); err != nil {
			return Room{}, err
		}
		occupied, err := svc.repo.CountOpenAllocations(ctx, rm.ID, tx)
		if err != nil {
			return Room{}, err
		}
		if occupied < rm.Capacity {
			return rm, nil
		}
	}
	return Room{}, ErrNoCapacity
}

// Vacate closes the student's open allocation and returns it;
// vacating an unallocated student fails with ErrNotAllocated.
func (svc *Service) Vacate(ctx context.Context, studentID string) (Allocation, error) {
	var prev Allocation
	err := svc.repo.Atomic(ctx, func(tx core.DBExecutor) error {
		var err error
		if prev, err = svc.repo.GetOpenAllocation(ctx, studentID, tx); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err = svc.repo.CloseAllocation(ctx, prev, now, tx); err != nil {
			return err
		}
		prev.EndDate = &now
		return nil
	})
	if err != nil {
		return Allocation{}, err
	}
	return prev, nil
}

// GetStudentAllocation returns the student's open allocation, if any.
func (svc *Service) GetStudentAllocation(ctx context.Context, studentID string) (Allocation, error) {
	return svc.repo.GetOpenAllocation(ctx, studentID)
}

// QueryAllocated returns open allocations with student and room details.
func (svc *Service) QueryAllocated(ctx context.Context, roomID string) ([]AllocationDetail, error) {
	return svc.repo.QueryOpenAllocations(ctx, roomID)
}
