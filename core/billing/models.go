package billing

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Installment statuses
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// Installment is one scheduled partial payment of a student's total fee.
// Numbers are contiguous from 1 and unique per student; the schedule is
// created once at registration and never regenerated.
type Installment struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	Number    int        `json:"number"`
	Amount    float64    `json:"amount"`
	DueDate   time.Time  `json:"due_date"`  // UTC
	Status    string     `json:"status"`    // pending | paid
	PaidDate  *time.Time `json:"paid_date"` // UTC; nil while pending
}

func (i Installment) Pending() bool { return i.Status == StatusPending }

// InstallmentDetail joins an Installment with its student's contact info,
// as needed by reminder dispatch and cross-student listings.
type InstallmentDetail struct {
	Installment
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

// Payment is an ad hoc fee payment outside the installment schedule.
type Payment struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"` // UTC
	Status    string    `json:"status"`
}

// NewInstallmentPlan contains information needed to generate a student's
// installment schedule.
type NewInstallmentPlan struct {
	TotalFee  float64   `json:"total_fee" validate:"gte=0"`
	Count     int       `json:"count" validate:"required,gte=1"`
	StartDate time.Time `json:"start_date" validate:"required"`
}

func (np NewInstallmentPlan) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

// UpdateInstallment defines the explicit allow-list of mutable Installment fields.
type UpdateInstallment struct {
	Amount  *float64   `json:"amount" validate:"omitempty,gte=0"`
	DueDate *time.Time `json:"due_date"`
	Status  string     `json:"status" validate:"omitempty,oneof=pending paid"`
}

func (ui UpdateInstallment) Validate(validate *validator.Validate) error {
	return validate.Struct(ui)
}

// NewPayment contains information needed to record an ad hoc payment.
type NewPayment struct {
	Amount float64    `json:"amount" validate:"required,gt=0"`
	Date   *time.Time `json:"date"`
}

func (np NewPayment) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

// Stats are aggregate installment statistics, recomputed on demand.
type Stats struct {
	TotalInstallments  int     `json:"total_installments"`
	PaidCount          int     `json:"paid_installments"`
	PendingCount       int     `json:"pending_installments"`
	TotalPendingAmount float64 `json:"total_pending_amount"`
	OverdueCount       int     `json:"overdue_count"`
}

// BulkReminderResult aggregates a reminder fan-out; one failed send never
// aborts the remaining batch.
type BulkReminderResult struct {
	Total  int      `json:"total"`
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}
