package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/makazi/core"
)

type Student struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	RollNumber      string    `json:"roll_number"`
	NationalID      string    `json:"national_id"`
	Gender          string    `json:"gender"`
	Year            string    `json:"year"`
	ParentName      string    `json:"parent_name"`
	ParentPhone     string    `json:"parent_phone"`
	CollegeName     string    `json:"college_name"`
	AdmissionNumber string    `json:"admission_number"`
	Address         string    `json:"address"`
	TotalFee        float64   `json:"total_fee"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to register a new Student.
type NewStudent struct {
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"omitempty,mobile"`
	RollNumber      string  `json:"roll_number" validate:"required"`
	NationalID      string  `json:"national_id" validate:"omitempty,natid"`
	Gender          string  `json:"gender"`
	Year            string  `json:"year"`
	ParentName      string  `json:"parent_name"`
	ParentPhone     string  `json:"parent_phone" validate:"omitempty,mobile"`
	CollegeName     string  `json:"college_name"`
	AdmissionNumber string  `json:"admission_number"`
	Address         string  `json:"address"`
	TotalFee        float64 `json:"total_fee" validate:"gte=0"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Phone = core.CleanString(ns.Phone)
	ns.RollNumber = core.CleanString(ns.RollNumber)
	ns.NationalID = core.CleanString(ns.NationalID)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ns.Email, ns.RollNumber, ns.NationalID)
}

// UpdateStudent defines the explicit allow-list of mutable Student fields;
// anything else in a request body is discarded at binding.
type UpdateStudent struct {
	Name            string   `json:"name"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           string   `json:"phone" validate:"omitempty,mobile"`
	Gender          string   `json:"gender"`
	Year            string   `json:"year"`
	ParentName      string   `json:"parent_name"`
	ParentPhone     string   `json:"parent_phone" validate:"omitempty,mobile"`
	CollegeName     string   `json:"college_name"`
	AdmissionNumber string   `json:"admission_number"`
	Address         string   `json:"address"`
	TotalFee        *float64 `json:"total_fee" validate:"omitempty,gte=0"` // admin only
}

func (us *UpdateStudent) Validate(ctx context.Context, validate *validator.Validate, orig Student, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}

	if email := core.CleanString(us.Email, true /* lower */); email != "" {
		us.Email = email
	} else {
		us.Email = orig.Email
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, us.Email, orig.RollNumber, orig.NationalID, orig)
}

type QueryFilter struct {
	// Search does a case-insensitive substring match on one of
	// Name, Email, Phone or RollNumber.
	Search      string    `query:"search"`
	Year        string    `query:"year"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Year == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Year = core.CleanString(qf.Year)
}
