package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core"
)

var (
	// errors
	ErrNotFound         = errors.New("student not found")
	ErrEmailExists      = errors.New("a student with this email already exists")
	ErrRollNumberExists = errors.New("a student with this roll number already exists")
	ErrNationalIDExists = errors.New("a student with this national ID already exists")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, email, rollNumber, nationalID string, excludedStudents ...Student) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		QueryAllStudents(ctx context.Context) ([]Student, error)
		// FilterStudents applies AND operation on available QueryFilter fields.
		FilterStudents(ctx context.Context, filter QueryFilter) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student) (Student, error)
		// DeleteStudentsByID cascades to the students' allocations,
		// installments and payments.
		DeleteStudentsByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email, rollNumber, nationalID string, exclStudents ...Student) error {
	if err := svc.repo.CheckUniqueness(ctx, email, rollNumber, nationalID, exclStudents...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrRollNumberExists:
			field = "roll_number"
		case ErrNationalIDExists:
			field = "national_id"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		Name:            ns.Name,
		Email:           ns.Email,
		Phone:           ns.Phone,
		RollNumber:      ns.RollNumber,
		NationalID:      ns.NationalID,
		Gender:          ns.Gender,
		Year:            ns.Year,
		ParentName:      ns.ParentName,
		ParentPhone:     ns.ParentPhone,
		CollegeName:     ns.CollegeName,
		AdmissionNumber: ns.AdmissionNumber,
		Address:         ns.Address,
		TotalFee:        ns.TotalFee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryAllStudents(ctx)
}

// Query returns all students matching filter; a nil or empty filter matches everyone.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Student, error) {
	if filter == nil || filter.IsEmpty() {
		return svc.QueryAll(ctx)
	}
	return svc.Filter(ctx, *filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Student, error) {
	return svc.repo.FilterStudents(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, orig Student, us UpdateStudent) (Student, error) {
	std := orig
	std.Name = us.Name
	std.Email = us.Email
	std.Phone = us.Phone
	std.Gender = us.Gender
	std.Year = us.Year
	std.ParentName = us.ParentName
	std.ParentPhone = us.ParentPhone
	std.CollegeName = us.CollegeName
	std.AdmissionNumber = us.AdmissionNumber
	std.Address = us.Address
	if us.TotalFee != nil {
		std.TotalFee = *us.TotalFee
	}
	std.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, std)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}
