package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core/billing"
	"github.com/trezcool/makazi/core/student"
)

type billingApi struct {
	svc        *billing.Service
	studentSvc *student.Service
	validate   *validator.Validate
}

func registerBillingAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *billing.Service,
	studentSvc *student.Service,
	validate *validator.Validate,
) {
	api := billingApi{
		svc:        svc,
		studentSvc: studentSvc,
		validate:   validate,
	}

	sg := g.Group("/students/:id", jwt)
	sg.POST("/installments", api.generate)
	sg.GET("/installments", api.querySchedule)
	sg.PUT("/installments/:num/pay", api.markPaid)
	sg.POST("/payments", api.addPayment)
	sg.GET("/payments", api.queryPayments)

	ig := g.Group("/installments", jwt)
	ig.GET("/pending", api.queryPending)
	ig.GET("/overdue", api.queryOverdue)
	ig.GET("/upcoming", api.queryUpcoming)
	ig.GET("/stats", api.stats)
	ig.PUT("/:id", api.update, adminMiddleware())
	ig.DELETE("/:id", api.destroy, adminMiddleware())

	rg := g.Group("/reminders", jwt)
	rg.POST("/students/:id/installments/:num", api.sendReminder)
	rg.POST("/bulk", api.sendBulkReminders)
}

// Handlers

func (api *billingApi) generate(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.studentSvc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}

	var data billing.NewInstallmentPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstallmentPlan")
	}
	if data.TotalFee == 0 {
		data.TotalFee = std.TotalFee
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	insts, err := api.svc.Generate(reqCtx, std.ID, data)
	if err != nil {
		return errors.Wrap(err, "generating installment schedule")
	}
	return ctx.JSON(http.StatusCreated, insts)
}

func (api *billingApi) querySchedule(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.studentSvc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	insts, err := api.svc.QuerySchedule(reqCtx, std.ID)
	if err != nil {
		return errors.Wrap(err, "querying installment schedule")
	}
	if insts == nil {
		insts = []billing.Installment{}
	}
	return ctx.JSON(http.StatusOK, insts)
}

func (api *billingApi) markPaid(ctx echo.Context) error {
	number, err := installmentNumber(ctx)
	if err != nil {
		return err
	}
	inst, err := api.svc.MarkPaid(ctx.Request().Context(), ctx.Param("id"), number)
	if err != nil {
		return errors.Wrap(err, "marking installment paid")
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *billingApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	inst, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding installment by ID")
	}

	var data billing.UpdateInstallment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateInstallment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	inst, err = api.svc.Update(reqCtx, inst, data)
	if err != nil {
		return errors.Wrap(err, "updating installment")
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *billingApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	inst, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding installment by ID")
	}
	if err := api.svc.Delete(reqCtx, inst.ID); err != nil {
		return errors.Wrap(err, "deleting installment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *billingApi) queryPending(ctx echo.Context) error {
	// an optional student_id scopes the listing to one student
	insts, err := api.svc.FilterPending(ctx.Request().Context(), ctx.QueryParam("student_id"))
	if err != nil {
		return errors.Wrap(err, "querying pending installments")
	}
	return ctx.JSON(http.StatusOK, detailsOrEmpty(insts))
}

func (api *billingApi) queryOverdue(ctx echo.Context) error {
	insts, err := api.svc.FilterOverdue(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying overdue installments")
	}
	return ctx.JSON(http.StatusOK, detailsOrEmpty(insts))
}

func (api *billingApi) queryUpcoming(ctx echo.Context) error {
	insts, err := api.svc.FilterUpcoming(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying upcoming installments")
	}
	return ctx.JSON(http.StatusOK, detailsOrEmpty(insts))
}

func (api *billingApi) stats(ctx echo.Context) error {
	stats, err := api.svc.GetStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying installment stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *billingApi) addPayment(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.studentSvc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}

	var data billing.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	payment, err := api.svc.AddPayment(reqCtx, std.ID, data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, payment)
}

func (api *billingApi) queryPayments(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.studentSvc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	payments, err := api.svc.QueryPayments(reqCtx, std.ID)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []billing.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *billingApi) sendReminder(ctx echo.Context) error {
	number, err := installmentNumber(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.SendReminder(ctx.Request().Context(), ctx.Param("id"), number); err != nil {
		return errors.Wrap(err, "sending payment reminder")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Payment reminder sent."})
}

func (api *billingApi) sendBulkReminders(ctx echo.Context) error {
	res, err := api.svc.SendBulkReminders(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "sending bulk payment reminders")
	}
	return ctx.JSON(http.StatusOK, res)
}

func installmentNumber(ctx echo.Context) (int, error) {
	number, err := strconv.Atoi(ctx.Param("num"))
	if err != nil || number < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid installment number")
	}
	return number, nil
}

func detailsOrEmpty(insts []billing.InstallmentDetail) []billing.InstallmentDetail {
	return append([]billing.InstallmentDetail{}, insts...)
}
