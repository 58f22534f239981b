package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/makazi/core"
	"github.com/trezcool/makazi/core/billing"
)

const (
	selectInstallment = `
SELECT id, student_id, number, amount, due_date, status, paid_date
FROM installment`

	selectInstallmentDetail = `
SELECT i.id, i.student_id, i.number, i.amount, i.due_date, i.status, i.paid_date,
       s.name AS student_name, s.email AS student_email
FROM installment i
         JOIN student s ON s.id = i.student_id`
)

type installmentRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	Number    int       `db:"number"`
	Amount    float64   `db:"amount"`
	DueDate   time.Time `db:"due_date"`
	Status    string    `db:"status"`
	PaidDate  null.Time `db:"paid_date"`
}

func (r installmentRow) unpack() billing.Installment {
	inst := billing.Installment{
		ID:        r.ID,
		StudentID: r.StudentID,
		Number:    r.Number,
		Amount:    r.Amount,
		DueDate:   r.DueDate.UTC(),
		Status:    r.Status,
	}
	if r.PaidDate.Valid {
		paid := r.PaidDate.Time.UTC()
		inst.PaidDate = &paid
	}
	return inst
}

type installmentDetailRow struct {
	installmentRow
	StudentName  string `db:"student_name"`
	StudentEmail string `db:"student_email"`
}

func (r installmentDetailRow) unpack() billing.InstallmentDetail {
	return billing.InstallmentDetail{
		Installment:  r.installmentRow.unpack(),
		StudentName:  r.StudentName,
		StudentEmail: r.StudentEmail,
	}
}

func unpackInstallmentDetailRows(rows []installmentDetailRow) []billing.InstallmentDetail {
	details := make([]billing.InstallmentDetail, 0, len(rows))
	for _, r := range rows {
		details = append(details, r.unpack())
	}
	return details
}

type paymentRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	Amount    float64   `db:"amount"`
	Date      time.Time `db:"date"`
	Status    string    `db:"status"`
}

func (r paymentRow) unpack() billing.Payment {
	return billing.Payment{
		ID:        r.ID,
		StudentID: r.StudentID,
		Amount:    r.Amount,
		Date:      r.Date.UTC(),
		Status:    r.Status,
	}
}

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *sqlx.DB) *billingRepository {
	return &billingRepository{db: db}
}

func (repo billingRepository) CreateInstallments(ctx context.Context, insts []billing.Installment) ([]billing.Installment, error) {
	created := make([]billing.Installment, 0, len(insts))
	err := atomic(ctx, repo.db, func(tx core.DBExecutor) error {
		const q = `
INSERT INTO installment (id, student_id, number, amount, due_date, status)
VALUES ($1, $2, $3, $4, $5, $6)`
		for _, inst := range insts {
			inst.ID = uuid.New().String()
			if _, err := tx.ExecContext(ctx, q, inst.ID, inst.StudentID, inst.Number, inst.Amount, inst.DueDate.UTC(), inst.Status); err != nil {
				return errors.Wrap(err, "inserting installment")
			}
			created = append(created, inst)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (repo billingRepository) GetInstallment(ctx context.Context, studentID string, number int) (billing.Installment, error) {
	var row installmentRow
	const q = selectInstallment + " WHERE student_id = $1 AND number = $2"
	if err := sqlx.GetContext(ctx, repo.db, &row, q, studentID, number); err != nil {
		if err == sql.ErrNoRows {
			return billing.Installment{}, billing.ErrNotFound
		}
		return billing.Installment{}, errors.Wrap(err, "getting installment")
	}
	return row.unpack(), nil
}

func (repo billingRepository) GetInstallmentByID(ctx context.Context, id string) (billing.Installment, error) {
	var row installmentRow
	const q = selectInstallment + " WHERE id = $1"
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return billing.Installment{}, billing.ErrNotFound
		}
		return billing.Installment{}, errors.Wrap(err, "getting installment")
	}
	return row.unpack(), nil
}

func (repo billingRepository) GetInstallmentDetail(ctx context.Context, studentID string, number int) (billing.InstallmentDetail, error) {
	var row installmentDetailRow
	const q = selectInstallmentDetail + " WHERE i.student_id = $1 AND i.number = $2"
	if err := sqlx.GetContext(ctx, repo.db, &row, q, studentID, number); err != nil {
		if err == sql.ErrNoRows {
			return billing.InstallmentDetail{}, billing.ErrNotFound
		}
		return billing.InstallmentDetail{}, errors.Wrap(err, "getting installment")
	}
	return row.unpack(), nil
}

func (repo billingRepository) QueryStudentInstallments(ctx context.Context, studentID string) ([]billing.Installment, error) {
	var rows []installmentRow
	const q = selectInstallment + " WHERE student_id = $1 ORDER BY number ASC"
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying installments")
	}
	insts := make([]billing.Installment, 0, len(rows))
	for _, r := range rows {
		insts = append(insts, r.unpack())
	}
	return insts, nil
}

func (repo billingRepository) UpdateInstallment(ctx context.Context, inst billing.Installment) (billing.Installment, error) {
	const q = `
UPDATE installment
SET amount = $2, due_date = $3, status = $4, paid_date = $5
WHERE id = $1
RETURNING id, student_id, number, amount, due_date, status, paid_date`

	var row installmentRow
	err := sqlx.GetContext(ctx, repo.db, &row, q, inst.ID, inst.Amount, inst.DueDate.UTC(), inst.Status, null.TimeFromPtr(inst.PaidDate))
	if err != nil {
		if err == sql.ErrNoRows {
			return billing.Installment{}, billing.ErrNotFound
		}
		return billing.Installment{}, errors.Wrap(err, "updating installment")
	}
	return row.unpack(), nil
}

func (repo billingRepository) DeleteInstallmentsByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM installment WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting installments")
	}
	return nil
}

func (repo billingRepository) FilterPendingInstallments(ctx context.Context, studentID string) ([]billing.InstallmentDetail, error) {
	q := selectInstallmentDetail + " WHERE i.status = 'pending'"
	var args []interface{}
	if studentID != "" {
		q += " AND i.student_id = $1"
		args = append(args, studentID)
	}
	q += " ORDER BY i.due_date ASC, i.number ASC"

	var rows []installmentDetailRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying pending installments")
	}
	return unpackInstallmentDetailRows(rows), nil
}

func (repo billingRepository) FilterOverdueInstallments(ctx context.Context, asOf time.Time) ([]billing.InstallmentDetail, error) {
	const q = selectInstallmentDetail + ` WHERE i.status = 'pending' AND i.due_date < $1 ORDER BY i.due_date ASC, i.number ASC`
	var rows []installmentDetailRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, asOf.UTC()); err != nil {
		return nil, errors.Wrap(err, "querying overdue installments")
	}
	return unpackInstallmentDetailRows(rows), nil
}

func (repo billingRepository) FilterUpcomingInstallments(ctx context.Context, asOf time.Time, horizon time.Duration) ([]billing.InstallmentDetail, error) {
	const q = selectInstallmentDetail + ` WHERE i.status = 'pending' AND i.due_date BETWEEN $1 AND $2 ORDER BY i.due_date ASC, i.number ASC`
	var rows []installmentDetailRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, asOf.UTC(), asOf.UTC().Add(horizon)); err != nil {
		return nil, errors.Wrap(err, "querying upcoming installments")
	}
	return unpackInstallmentDetailRows(rows), nil
}

func (repo billingRepository) GetStats(ctx context.Context, asOf time.Time) (billing.Stats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'paid'),
       COUNT(*) FILTER (WHERE status = 'pending'),
       COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0),
       COUNT(*) FILTER (WHERE status = 'pending' AND due_date < $1)
FROM installment`

	var stats billing.Stats
	err := repo.db.QueryRowContext(ctx, q, asOf.UTC()).Scan(
		&stats.TotalInstallments, &stats.PaidCount, &stats.PendingCount, &stats.TotalPendingAmount, &stats.OverdueCount)
	if err != nil {
		return billing.Stats{}, errors.Wrap(err, "querying installment stats")
	}
	return stats, nil
}

func (repo billingRepository) CreatePayment(ctx context.Context, pmt billing.Payment) (billing.Payment, error) {
	pmt.ID = uuid.New().String()

	const q = `
INSERT INTO payment (id, student_id, amount, date, status)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := repo.db.ExecContext(ctx, q, pmt.ID, pmt.StudentID, pmt.Amount, pmt.Date.UTC(), pmt.Status); err != nil {
		return billing.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo billingRepository) QueryStudentPayments(ctx context.Context, studentID string) ([]billing.Payment, error) {
	var rows []paymentRow
	const q = `SELECT id, student_id, amount, date, status FROM payment WHERE student_id = $1 ORDER BY date DESC`
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]billing.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.unpack())
	}
	return payments, nil
}

func (repo billingRepository) SumStudentPaid(ctx context.Context, studentID string) (float64, error) {
	const q = `
SELECT COALESCE((SELECT SUM(amount) FROM installment WHERE student_id = $1 AND status = 'paid'), 0)
           + COALESCE((SELECT SUM(amount) FROM payment WHERE student_id = $1 AND status = 'paid'), 0)`

	var total float64
	if err := repo.db.QueryRowContext(ctx, q, studentID).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "summing student payments")
	}
	return total, nil
}
