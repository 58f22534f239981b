package billing

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/makazi/core"
)

type reminderData struct {
	StudentName string
	Number      int
	Amount      float64
	DueDate     string
	Overdue     bool
}

// SendReminder sends a payment reminder email for one pending installment.
// Reminding a paid installment fails with ErrNotFound.
func (svc *Service) SendReminder(ctx context.Context, studentID string, number int) error {
	inst, err := svc.repo.GetInstallmentDetail(ctx, studentID, number)
	if err != nil {
		return err
	}
	if !inst.Pending() {
		return ErrNotFound
	}
	return svc.sendReminder(inst)
}

// SendBulkReminders sends a payment reminder for every overdue installment.
// Sends are sequential and failures are collected per item; a bounced address
// never aborts the remaining batch.
func (svc *Service) SendBulkReminders(ctx context.Context) (BulkReminderResult, error) {
	overdue, err := svc.repo.FilterOverdueInstallments(ctx, nowFunc().UTC())
	if err != nil {
		return BulkReminderResult{}, err
	}

	res := BulkReminderResult{Total: len(overdue)}
	for _, inst := range overdue {
		if err := svc.sendReminder(inst); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s (installment %d): %v", inst.StudentEmail, inst.Number, err))
			continue
		}
		res.Sent++
	}
	return res, nil
}

func (svc *Service) sendReminder(inst InstallmentDetail) error {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: inst.StudentName, Address: inst.StudentEmail}},
		Subject:      fmt.Sprintf("%s - Fee Payment Reminder", svc.conf.AppName),
		TemplateName: "payment-reminder",
		TemplateData: reminderData{
			StudentName: inst.StudentName,
			Number:      inst.Number,
			Amount:      inst.Amount,
			DueDate:     inst.DueDate.Format("02 Jan 2006"),
			Overdue:     inst.DueDate.Before(nowFunc().UTC()),
		},
	}
	return svc.mailSvc.SendMessage(msg)
}
