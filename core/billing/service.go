package billing

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core"
)

var (
	// errors
	ErrNotFound       = errors.New("installment not found")
	ErrScheduleExists = errors.New("an installment schedule already exists for this student")
)

// installmentInterval separates consecutive due dates.
const installmentInterval = 30 * 24 * time.Hour

var nowFunc = time.Now // mockable for tests

type (
	// Repository is the Installment + Payment store.
	Repository interface {
		CreateInstallments(ctx context.Context, insts []Installment) ([]Installment, error)
		// GetInstallment fetches a student's installment by its schedule number.
		GetInstallment(ctx context.Context, studentID string, number int) (Installment, error)
		GetInstallmentByID(ctx context.Context, id string) (Installment, error)
		GetInstallmentDetail(ctx context.Context, studentID string, number int) (InstallmentDetail, error)
		// QueryStudentInstallments returns a student's schedule ordered by number ascending.
		QueryStudentInstallments(ctx context.Context, studentID string) ([]Installment, error)
		UpdateInstallment(ctx context.Context, inst Installment) (Installment, error)
		DeleteInstallmentsByID(ctx context.Context, ids ...string) error
		// FilterPendingInstallments returns pending installments joined with
		// student info, ordered by due date ascending; studentID scopes to one
		// student when non-empty.
		FilterPendingInstallments(ctx context.Context, studentID string) ([]InstallmentDetail, error)
		// FilterOverdueInstallments returns pending installments strictly due
		// before asOf, ordered by due date ascending.
		FilterOverdueInstallments(ctx context.Context, asOf time.Time) ([]InstallmentDetail, error)
		// FilterUpcomingInstallments returns pending installments due within
		// [asOf, asOf + horizon], bounds included, ordered by due date ascending.
		FilterUpcomingInstallments(ctx context.Context, asOf time.Time, horizon time.Duration) ([]InstallmentDetail, error)
		GetStats(ctx context.Context, asOf time.Time) (Stats, error)

		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		// QueryStudentPayments returns a student's payments ordered by date descending.
		QueryStudentPayments(ctx context.Context, studentID string) ([]Payment, error)
		// SumStudentPaid returns the sum of the student's paid installments and payments.
		SumStudentPaid(ctx context.Context, studentID string) (float64, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

// Generate creates a student's installment schedule: `Count` installments
// summing exactly to `TotalFee`, installment n due 30*n days after
// `StartDate`. Per-installment amounts are rounded to cents; the last
// installment absorbs the rounding remainder. A student's schedule is
// generated at most once.
func (svc *Service) Generate(ctx context.Context, studentID string, plan NewInstallmentPlan) ([]Installment, error) {
	existing, err := svc.repo.QueryStudentInstallments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrScheduleExists
	}

	base := roundCents(plan.TotalFee / float64(plan.Count))
	last := roundCents(plan.TotalFee - base*float64(plan.Count-1))
	start := plan.StartDate.UTC()

	insts := make([]Installment, plan.Count)
	for i := range insts {
		amount := base
		if i == plan.Count-1 {
			amount = last
		}
		insts[i] = Installment{
			StudentID: studentID,
			Number:    i + 1,
			Amount:    amount,
			DueDate:   start.Add(time.Duration(i+1) * installmentInterval),
			Status:    StatusPending,
		}
	}
	return svc.repo.CreateInstallments(ctx, insts)
}

func (svc *Service) Get(ctx context.Context, studentID string, number int) (Installment, error) {
	return svc.repo.GetInstallment(ctx, studentID, number)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Installment, error) {
	return svc.repo.GetInstallmentByID(ctx, id)
}

func (svc *Service) QuerySchedule(ctx context.Context, studentID string) ([]Installment, error) {
	return svc.repo.QueryStudentInstallments(ctx, studentID)
}

// MarkPaid transitions an installment to paid, stamping the paid date.
// Re-marking a paid installment succeeds and refreshes the paid date.
func (svc *Service) MarkPaid(ctx context.Context, studentID string, number int) (Installment, error) {
	inst, err := svc.repo.GetInstallment(ctx, studentID, number)
	if err != nil {
		return Installment{}, err
	}
	now := nowFunc().UTC()
	inst.Status = StatusPaid
	inst.PaidDate = &now
	return svc.repo.UpdateInstallment(ctx, inst)
}

// Update applies the allow-listed installment updates. Setting the status
// back to pending clears the paid date.
func (svc *Service) Update(ctx context.Context, orig Installment, ui UpdateInstallment) (Installment, error) {
	inst := orig
	if ui.Amount != nil {
		inst.Amount = *ui.Amount
	}
	if ui.DueDate != nil {
		inst.DueDate = ui.DueDate.UTC()
	}
	if ui.Status != "" && ui.Status != orig.Status {
		inst.Status = ui.Status
		if ui.Status == StatusPaid {
			now := nowFunc().UTC()
			inst.PaidDate = &now
		} else {
			inst.PaidDate = nil
		}
	}
	return svc.repo.UpdateInstallment(ctx, inst)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteInstallmentsByID(ctx, ids...)
}

// FilterPending returns all pending installments; studentID scopes to one
// student when non-empty.
func (svc *Service) FilterPending(ctx context.Context, studentID string) ([]InstallmentDetail, error) {
	return svc.repo.FilterPendingInstallments(ctx, studentID)
}

// FilterOverdue returns pending installments whose due date has passed.
func (svc *Service) FilterOverdue(ctx context.Context) ([]InstallmentDetail, error) {
	return svc.repo.FilterOverdueInstallments(ctx, nowFunc().UTC())
}

// FilterUpcoming returns pending installments due within the configured
// reminder horizon.
func (svc *Service) FilterUpcoming(ctx context.Context) ([]InstallmentDetail, error) {
	horizon := time.Duration(svc.conf.ReminderHorizonDays) * 24 * time.Hour
	return svc.repo.FilterUpcomingInstallments(ctx, nowFunc().UTC(), horizon)
}

// GetStats recomputes aggregate installment statistics.
func (svc *Service) GetStats(ctx context.Context) (Stats, error) {
	return svc.repo.GetStats(ctx, nowFunc().UTC())
}

// AddPayment records an ad hoc payment for a student.
func (svc *Service) AddPayment(ctx context.Context, studentID string, np NewPayment) (Payment, error) {
	date := nowFunc().UTC()
	if np.Date != nil {
		date = np.Date.UTC()
	}
	return svc.repo.CreatePayment(ctx, Payment{
		StudentID: studentID,
		Amount:    np.Amount,
		Date:      date,
		Status:    StatusPaid,
	})
}

func (svc *Service) QueryPayments(ctx context.Context, studentID string) ([]Payment, error) {
	return svc.repo.QueryStudentPayments(ctx, studentID)
}

// TotalPaid returns the sum of a student's paid installments and payments.
func (svc *Service) TotalPaid(ctx context.Context, studentID string) (float64, error) {
	total, err := svc.repo.SumStudentPaid(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return roundCents(total), nil
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
