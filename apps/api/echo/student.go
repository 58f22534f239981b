package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core/billing"
	"github.com/trezcool/makazi/core/room"
	"github.com/trezcool/makazi/core/student"
)

type studentAPIDeps struct {
	svc        *student.Service
	roomSvc    *room.Service
	billingSvc *billing.Service
	validate   *validator.Validate
}

type studentApi struct {
	studentAPIDeps
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps studentAPIDeps) {
	api := studentApi{deps}

	sg := g.Group("/students", jwt)
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

type (
	// RegisterStudentRequest registers a student and optionally sets up
	// their installment schedule and room in one call.
	RegisterStudentRequest struct {
		student.NewStudent
		Installments *billing.NewInstallmentPlan `json:"installments"`
		AutoAllocate bool                        `json:"auto_allocate"`
		RoomID       string                      `json:"room_id"`
	}

	RegisterStudentResponse struct {
		student.Student
		Installments []billing.Installment `json:"installments,omitempty"`
		Allocation   *room.Allocation      `json:"allocation,omitempty"`
	}

	StudentDetailResponse struct {
		student.Student
		Room         *room.Room            `json:"room"`
		Allocation   *room.Allocation      `json:"allocation"`
		Installments []billing.Installment `json:"installments"`
		Payments     []billing.Payment     `json:"payments"`
		TotalPaid    float64               `json:"total_paid"`
		RemainingFee float64               `json:"remaining_fee"`
	}
)

// Handlers

func (api *studentApi) create(ctx echo.Context) error {
	var data RegisterStudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterStudentRequest")
	}
	reqCtx := ctx.Request().Context()

	if err := data.NewStudent.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}
	if data.Installments != nil {
		if err := data.Installments.Validate(api.validate); err != nil {
			return err
		}
	}

	std, err := api.svc.Create(reqCtx, data.NewStudent)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	resp := RegisterStudentResponse{Student: std}

	if data.Installments != nil {
		if resp.Installments, err = api.billingSvc.Generate(reqCtx, std.ID, *data.Installments); err != nil {
			return errors.Wrap(err, "generating installment schedule")
		}
	}
	if data.AutoAllocate || data.RoomID != "" {
		alloc, err := api.roomSvc.Allocate(reqCtx, std.ID, data.RoomID)
		if err != nil {
			return errors.Wrap(err, "allocating room")
		}
		resp.Allocation = &alloc
	}

	return ctx.JSON(http.StatusCreated, resp)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()

	students, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	resp := StudentDetailResponse{
		Student:      std,
		Installments: []billing.Installment{},
		Payments:     []billing.Payment{},
	}

	if alloc, err := api.roomSvc.GetStudentAllocation(reqCtx, std.ID); err == nil {
		rm, err := api.roomSvc.GetByID(reqCtx, alloc.RoomID)
		if err != nil {
			return errors.Wrap(err, "finding allocated room")
		}
		resp.Allocation = &alloc
		resp.Room = &rm
	} else if errors.Cause(err) != room.ErrNotAllocated {
		return errors.Wrap(err, "finding student allocation")
	}

	if resp.Installments, err = api.billingSvc.QuerySchedule(reqCtx, std.ID); err != nil {
		return errors.Wrap(err, "querying installment schedule")
	}
	if resp.Payments, err = api.billingSvc.QueryPayments(reqCtx, std.ID); err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if resp.TotalPaid, err = api.billingSvc.TotalPaid(reqCtx, std.ID); err != nil {
		return errors.Wrap(err, "summing payments")
	}
	resp.RemainingFee = std.TotalFee - resp.TotalPaid

	return ctx.JSON(http.StatusOK, resp)
}

func (api *studentApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	// the fee a student owes can only be changed by admin
	if data.TotalFee != nil {
		if claims, err := getContextClaims(ctx); err != nil || !claims.IsAdmin {
			return errHttpForbidden
		}
	}

	if err := data.Validate(reqCtx, api.validate, std, api.svc); err != nil {
		return err
	}

	std, err = api.svc.Update(reqCtx, std, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	std, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	if err := api.svc.Delete(reqCtx, std.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
