package dummydb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/makazi/core/student"
)

type studentRepository struct {
	db          *studentTable
	allocation  *allocationTable
	installment *installmentTable
	payment     *paymentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{
		db:          db.student,
		allocation:  db.allocation,
		installment: db.installment,
		payment:     db.payment,
	}
}

func (repo *studentRepository) query() []student.Student {
	students := make([]student.Student, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		students = append(students, *s)
	}
	return students
}

func (repo *studentRepository) CheckUniqueness(ctx context.Context, email, rollNumber, nationalID string, excludedStudents ...student.Student) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exclIDs := make([]string, 0, len(excludedStudents))
	for _, std := range excludedStudents {
		exclIDs = append(exclIDs, std.ID)
	}

	for _, std := range repo.query() {
		if containsID(std.ID, exclIDs) {
			continue
		}
		if strings.EqualFold(std.Email, email) {
			return student.ErrEmailExists
		}
		if strings.EqualFold(std.RollNumber, rollNumber) {
			return student.ErrRollNumberExists
		}
		if nationalID != "" && std.NationalID == nationalID {
			return student.ErrNationalIDExists
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std.ID = uuid.New().String()
	repo.db.table[std.ID] = &std
	return std, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.table[id]; ok {
		return *std, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryAllStudents(ctx context.Context) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := repo.query()

	// students with search keyword matching any Name, Email, Phone or RollNumber
	if filter.Search != "" {
		var filtered []student.Student
		search := strings.ToLower(filter.Search)
		for _, s := range students {
			if strings.Contains(strings.ToLower(s.Name), search) ||
				strings.Contains(strings.ToLower(s.Email), search) ||
				strings.Contains(strings.ToLower(s.Phone), search) ||
				strings.Contains(strings.ToLower(s.RollNumber), search) {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}
	if students != nil && filter.Year != "" {
		var filtered []student.Student
		for _, s := range students {
			if s.Year == filter.Year {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}
	if students != nil && !filter.CreatedFrom.IsZero() {
		var filtered []student.Student
		timeUTC := filter.CreatedFrom.UTC()
		for _, s := range students {
			if s.CreatedAt.Equal(timeUTC) || s.CreatedAt.After(timeUTC) {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}
	if students != nil && !filter.CreatedTo.IsZero() {
		var filtered []student.Student
		timeUTC := filter.CreatedTo.UTC()
		for _, s := range students {
			if s.CreatedAt.Before(timeUTC) || s.CreatedAt.Equal(timeUTC) {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}

	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[std.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.table[std.ID] = &std
	return std, nil
}

// DeleteStudentsByID cascades to the students' allocations, installments and payments.
func (repo *studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}

	repo.allocation.Lock()
	for allocID, alloc := range repo.allocation.table {
		if containsID(alloc.StudentID, ids) {
			delete(repo.allocation.table, allocID)
		}
	}
	repo.allocation.Unlock()

	repo.installment.Lock()
	for instID, inst := range repo.installment.table {
		if containsID(inst.StudentID, ids) {
			delete(repo.installment.table, instID)
		}
	}
	repo.installment.Unlock()

	repo.payment.Lock()
	for pmtID, pmt := range repo.payment.table {
		if containsID(pmt.StudentID, ids) {
			delete(repo.payment.table, pmtID)
		}
	}
	repo.payment.Unlock()
	return nil
}
