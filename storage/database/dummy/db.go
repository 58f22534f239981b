package dummydb

import (
	"sync"

	"github.com/trezcool/makazi/core/billing"
	"github.com/trezcool/makazi/core/room"
	"github.com/trezcool/makazi/core/student"
	"github.com/trezcool/makazi/core/user"
)

type (
	DB struct {
		user        *userTable
		student     *studentTable
		room        *roomTable
		allocation  *allocationTable
		installment *installmentTable
		payment     *paymentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}

	roomTable struct {
		sync.RWMutex
		table map[string]*room.Room
	}

	allocationTable struct {
		sync.RWMutex
		table map[string]*room.Allocation
	}

	installmentTable struct {
		sync.RWMutex
		table map[string]*billing.Installment
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*billing.Payment
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		student:     &studentTable{table: make(map[string]*student.Student)},
		room:        &roomTable{table: make(map[string]*room.Room)},
		allocation:  &allocationTable{table: make(map[string]*room.Allocation)},
		installment: &installmentTable{table: make(map[string]*billing.Installment)},
		payment:     &paymentTable{table: make(map[string]*billing.Payment)},
	}
	return db, nil
}

// snapshotAllocations copies the room and allocation tables so a failed
// atomic block can be rolled back.
func (db *DB) snapshotAllocations() (map[string]*room.Room, map[string]*room.Allocation) {
	db.room.RLock()
	rooms := make(map[string]*room.Room, len(db.room.table))
	for id, rm := range db.room.table {
		cp := *rm
		rooms[id] = &cp
	}
	db.room.RUnlock()

	db.allocation.RLock()
	allocs := make(map[string]*room.Allocation, len(db.allocation.table))
	for id, alloc := range db.allocation.table {
		cp := *alloc
		allocs[id] = &cp
	}
	db.allocation.RUnlock()
	return rooms, allocs
}

func (db *DB) restoreAllocations(rooms map[string]*room.Room, allocs map[string]*room.Allocation) {
	db.room.Lock()
	db.room.table = rooms
	db.room.Unlock()

	db.allocation.Lock()
	db.allocation.table = allocs
	db.allocation.Unlock()
}
