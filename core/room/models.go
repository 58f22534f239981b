package room

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/makazi/core"
)

type Room struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Occupancy is a Room read model; Occupied is always derived from open
// allocation rows, never stored.
type Occupancy struct {
	Room
	Occupied int `json:"occupied"`
	Vacant   int `json:"vacant"`
}

// Allocation links a Student to a Room for a span of time;
// it is open while EndDate is unset. A student holds at most one
// open Allocation at any time.
type Allocation struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	RoomID    string     `json:"room_id"`
	StartDate time.Time  `json:"start_date"` // UTC
	EndDate   *time.Time `json:"end_date"`   // UTC; nil while open
}

func (a Allocation) Open() bool { return a.EndDate == nil }

// AllocationDetail joins an open Allocation with its student and room.
type AllocationDetail struct {
	Allocation
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	RoomNumber   string `json:"room_number"`
}

// NewRoom contains information needed to create a new Room.
type NewRoom struct {
	Number   string `json:"number" validate:"required"`
	Capacity int    `json:"capacity" validate:"omitempty,gte=1"`
}

func (nr *NewRoom) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nr.Number = core.CleanString(nr.Number)

	if err := validate.Struct(nr); err != nil {
		return err
	}
	return svc.CheckNumberUniqueness(ctx, nr.Number)
}

// UpdateRoom defines what information may be provided to modify an existing Room.
type UpdateRoom struct {
	Number   string `json:"number"`
	Capacity *int   `json:"capacity" validate:"omitempty,gte=1"`
}

func (ur *UpdateRoom) Validate(ctx context.Context, validate *validator.Validate, orig Room, svc *Service) error {
	if number := core.CleanString(ur.Number); number != "" {
		ur.Number = number
	} else {
		ur.Number = orig.Number
	}

	if err := validate.Struct(ur); err != nil {
		return err
	}
	return svc.CheckNumberUniqueness(ctx, ur.Number, orig)
}
