package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core/student"
)

const selectStudent = `
SELECT id, name, email, phone, roll_number, national_id, gender, year, parent_name, parent_phone,
       college_name, admission_number, address, total_fee, created_at, updated_at
FROM student`

type studentRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	Email           string    `db:"email"`
	Phone           string    `db:"phone"`
	RollNumber      string    `db:"roll_number"`
	NationalID      string    `db:"national_id"`
	Gender          string    `db:"gender"`
	Year            string    `db:"year"`
	ParentName      string    `db:"parent_name"`
	ParentPhone     string    `db:"parent_phone"`
	CollegeName     string    `db:"college_name"`
	AdmissionNumber string    `db:"admission_number"`
	Address         string    `db:"address"`
	TotalFee        float64   `db:"total_fee"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r studentRow) unpack() student.Student {
	return student.Student{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		RollNumber:      r.RollNumber,
		NationalID:      r.NationalID,
		Gender:          r.Gender,
		Year:            r.Year,
		ParentName:      r.ParentName,
		ParentPhone:     r.ParentPhone,
		CollegeName:     r.CollegeName,
		AdmissionNumber: r.AdmissionNumber,
		Address:         r.Address,
		TotalFee:        r.TotalFee,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func unpackStudentRows(rows []studentRow) []student.Student {
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.unpack())
	}
	return students
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) CheckUniqueness(ctx context.Context, email, rollNumber, nationalID string, excludedStudents ...student.Student) error {
	exclIDs := make([]string, 0, len(excludedStudents))
	for _, std := range excludedStudents {
		exclIDs = append(exclIDs, std.ID)
	}

	const q = `
SELECT EXISTS(SELECT 1 FROM student WHERE LOWER(email) = LOWER($1) AND id <> ALL($4::uuid[])),
       EXISTS(SELECT 1 FROM student WHERE LOWER(roll_number) = LOWER($2) AND id <> ALL($4::uuid[])),
       EXISTS(SELECT 1 FROM student WHERE national_id = $3 AND national_id <> '' AND id <> ALL($4::uuid[]))`

	var emailExists, rollExists, natIDExists bool
	err := repo.db.QueryRowContext(ctx, q, email, rollNumber, nationalID, pq.Array(exclIDs)).
		Scan(&emailExists, &rollExists, &natIDExists)
	if err != nil {
		return errors.Wrap(err, "checking student uniqueness")
	}
	if emailExists {
		return student.ErrEmailExists
	}
	if rollExists {
		return student.ErrRollNumberExists
	}
	if natIDExists {
		return student.ErrNationalIDExists
	}
	return nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	std.ID = uuid.New().String()

	const q = `
INSERT INTO student (id, name, email, phone, roll_number, national_id, gender, year, parent_name, parent_phone,
                     college_name, admission_number, address, total_fee, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := repo.db.ExecContext(
		ctx, q,
		std.ID, std.Name, std.Email, std.Phone, std.RollNumber, std.NationalID, std.Gender, std.Year,
		std.ParentName, std.ParentPhone, std.CollegeName, std.AdmissionNumber, std.Address, std.TotalFee,
		std.CreatedAt.UTC(), std.UpdatedAt.UTC(),
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	var row studentRow
	if err := sqlx.GetContext(ctx, repo.db, &row, selectStudent+" WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return row.unpack(), nil
}

func (repo studentRepository) QueryAllStudents(ctx context.Context) ([]student.Student, error) {
	var rows []studentRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, selectStudent+" ORDER BY created_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return unpackStudentRows(rows), nil
}

func (repo studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, error) {
	conds := []string{"TRUE"}
	var args []interface{}

	// students with Name, Email, Phone or RollNumber matching the search keyword
	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d OR roll_number ILIKE $%d)", n, n, n, n))
	}
	if filter.Year != "" {
		args = append(args, filter.Year)
		conds = append(conds, fmt.Sprintf("year = $%d", len(args)))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	q := selectStudent + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY created_at DESC"
	var rows []studentRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering students")
	}
	return unpackStudentRows(rows), nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	const q = `
UPDATE student
SET name = $2, email = $3, phone = $4, roll_number = $5, national_id = $6, gender = $7, year = $8,
    parent_name = $9, parent_phone = $10, college_name = $11, admission_number = $12, address = $13,
    total_fee = $14, updated_at = $15
WHERE id = $1
RETURNING id, name, email, phone, roll_number, national_id, gender, year, parent_name, parent_phone,
          college_name, admission_number, address, total_fee, created_at, updated_at`

	var row studentRow
	err := sqlx.GetContext(
		ctx, repo.db, &row, q,
		std.ID, std.Name, std.Email, std.Phone, std.RollNumber, std.NationalID, std.Gender, std.Year,
		std.ParentName, std.ParentPhone, std.CollegeName, std.AdmissionNumber, std.Address, std.TotalFee,
		std.UpdatedAt.UTC(),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	return row.unpack(), nil
}

// DeleteStudentsByID relies on ON DELETE CASCADE to drop the students'
// allocations, installments and payments.
func (repo studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM student WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return nil
}
