package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/makazi/core/billing"
)

type billingRepository struct {
	db       *DB
	insts    *installmentTable
	payments *paymentTable
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) *billingRepository {
	return &billingRepository{db: db, insts: db.installment, payments: db.payment}
}

func (repo *billingRepository) query() []billing.Installment {
	insts := make([]billing.Installment, 0, len(repo.insts.table))
	for _, inst := range repo.insts.table {
		insts = append(insts, *inst)
	}
	sort.Slice(insts, func(i, j int) bool {
		if insts[i].DueDate.Equal(insts[j].DueDate) {
			return insts[i].Number < insts[j].Number
		}
		return insts[i].DueDate.Before(insts[j].DueDate)
	})
	return insts
}

func (repo *billingRepository) detail(inst billing.Installment) billing.InstallmentDetail {
	d := billing.InstallmentDetail{Installment: inst}
	repo.db.student.RLock()
	if std, ok := repo.db.student.table[inst.StudentID]; ok {
		d.StudentName = std.Name
		d.StudentEmail = std.Email
	}
	repo.db.student.RUnlock()
	return d
}

func (repo *billingRepository) CreateInstallments(ctx context.Context, insts []billing.Installment) ([]billing.Installment, error) {
	repo.insts.Lock()
	defer repo.insts.Unlock()

	created := make([]billing.Installment, 0, len(insts))
	for _, inst := range insts {
		inst := inst
		inst.ID = uuid.New().String()
		repo.insts.table[inst.ID] = &inst
		created = append(created, inst)
	}
	return created, nil
}

func (repo *billingRepository) GetInstallment(ctx context.Context, studentID string, number int) (billing.Installment, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	for _, inst := range repo.insts.table {
		if inst.StudentID == studentID && inst.Number == number {
			return *inst, nil
		}
	}
	return billing.Installment{}, billing.ErrNotFound
}

func (repo *billingRepository) GetInstallmentByID(ctx context.Context, id string) (billing.Installment, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	if inst, ok := repo.insts.table[id]; ok {
		return *inst, nil
	}
	return billing.Installment{}, billing.ErrNotFound
}

func (repo *billingRepository) GetInstallmentDetail(ctx context.Context, studentID string, number int) (billing.InstallmentDetail, error) {
	inst, err := repo.GetInstallment(ctx, studentID, number)
	if err != nil {
		return billing.InstallmentDetail{}, err
	}
	return repo.detail(inst), nil
}

func (repo *billingRepository) QueryStudentInstallments(ctx context.Context, studentID string) ([]billing.Installment, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	var insts []billing.Installment
	for _, inst := range repo.query() {
		if inst.StudentID == studentID {
			insts = append(insts, inst)
		}
	}
	sort.Slice(insts, func(i, j int) bool { return insts[i].Number < insts[j].Number })
	return insts, nil
}

func (repo *billingRepository) UpdateInstallment(ctx context.Context, inst billing.Installment) (billing.Installment, error) {
	repo.insts.Lock()
	defer repo.insts.Unlock()

	if _, ok := repo.insts.table[inst.ID]; !ok {
		return billing.Installment{}, billing.ErrNotFound
	}
	repo.insts.table[inst.ID] = &inst
	return inst, nil
}

func (repo *billingRepository) DeleteInstallmentsByID(ctx context.Context, ids ...string) error {
	repo.insts.Lock()
	defer repo.insts.Unlock()
	for _, id := range ids {
		delete(repo.insts.table, id)
	}
	return nil
}

func (repo *billingRepository) FilterPendingInstallments(ctx context.Context, studentID string) ([]billing.InstallmentDetail, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	var details []billing.InstallmentDetail
	for _, inst := range repo.query() {
		if !inst.Pending() || (studentID != "" && inst.StudentID != studentID) {
			continue
		}
		details = append(details, repo.detail(inst))
	}
	return details, nil
}

func (repo *billingRepository) FilterOverdueInstallments(ctx context.Context, asOf time.Time) ([]billing.InstallmentDetail, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	var details []billing.InstallmentDetail
	for _, inst := range repo.query() {
		if inst.Pending() && inst.DueDate.Before(asOf) {
			details = append(details, repo.detail(inst))
		}
	}
	return details, nil
}

func (repo *billingRepository) FilterUpcomingInstallments(ctx context.Context, asOf time.Time, horizon time.Duration) ([]billing.InstallmentDetail, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	end := asOf.Add(horizon)
	var details []billing.InstallmentDetail
	for _, inst := range repo.query() {
		if inst.Pending() && !inst.DueDate.Before(asOf) && !inst.DueDate.After(end) {
			details = append(details, repo.detail(inst))
		}
	}
	return details, nil
}

func (repo *billingRepository) GetStats(ctx context.Context, asOf time.Time) (billing.Stats, error) {
	repo.insts.RLock()
	defer repo.insts.RUnlock()

	var stats billing.Stats
	for _, inst := range repo.query() {
		stats.TotalInstallments++
		if inst.Pending() {
			stats.PendingCount++
			stats.TotalPendingAmount += inst.Amount
			if inst.DueDate.Before(asOf) {
				stats.OverdueCount++
			}
		} else {
			stats.PaidCount++
		}
	}
	return stats, nil
}

func (repo *billingRepository) CreatePayment(ctx context.Context, pmt billing.Payment) (billing.Payment, error) {
	repo.payments.Lock()
	defer repo.payments.Unlock()

	pmt.ID = uuid.New().String()
	repo.payments.table[pmt.ID] = &pmt
	return pmt, nil
}

func (repo *billingRepository) QueryStudentPayments(ctx context.Context, studentID string) ([]billing.Payment, error) {
	repo.payments.RLock()
	defer repo.payments.RUnlock()

	var payments []billing.Payment
	for _, pmt := range repo.payments.table {
		if pmt.StudentID == studentID {
			payments = append(payments, *pmt)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].Date.After(payments[j].Date) })
	return payments, nil
}

func (repo *billingRepository) SumStudentPaid(ctx context.Context, studentID string) (float64, error) {
	repo.insts.RLock()
	var total float64
	for _, inst := range repo.insts.table {
		if inst.StudentID == studentID && inst.Status == billing.StatusPaid {
			total += inst.Amount
		}
	}
	repo.insts.RUnlock()

	repo.payments.RLock()
	for _, pmt := range repo.payments.table {
		if pmt.StudentID == studentID && pmt.Status == billing.StatusPaid {
			total += pmt.Amount
		}
	}
	repo.payments.RUnlock()
	return total, nil
}
