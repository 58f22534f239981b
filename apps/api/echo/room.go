package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core/room"
	"github.com/trezcool/makazi/core/student"
)

type roomApi struct {
	svc        *room.Service
	studentSvc *student.Service
	validate   *validator.Validate
}

func registerRoomAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *room.Service,
	studentSvc *student.Service,
	validate *validator.Validate,
) {
	api := roomApi{
		svc:        svc,
		studentSvc: studentSvc,
		validate:   validate,
	}

	rg := g.Group("/rooms", jwt)
	rg.GET("", api.query)
	rg.GET("/available", api.queryAvailable)
	rg.POST("", api.create, adminMiddleware())
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update, adminMiddleware())
	rg.DELETE("/:id", api.destroy, adminMiddleware())
	rg.GET("/:id/students", api.queryStudents)

	ag := g.Group("/allocations", jwt)
	ag.GET("", api.queryAllocations)
	ag.POST("", api.allocate)
	ag.DELETE("/:studentID", api.vacate)
}

type AllocationRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	RoomID    string `json:"room_id"` // empty picks the first available room
}

func (ar *AllocationRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(ar)
}

// Handlers

func (api *roomApi) create(ctx echo.Context) error {
	var data room.NewRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoom")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	rm, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating room")
	}
	return ctx.JSON(http.StatusCreated, rm)
}

func (api *roomApi) query(ctx echo.Context) error {
	occs, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying rooms")
	}
	if occs == nil {
		occs = []room.Occupancy{}
	}
	return ctx.JSON(http.StatusOK, occs)
}

func (api *roomApi) queryAvailable(ctx echo.Context) error {
	occs, err := api.svc.QueryAvailable(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying available rooms")
	}
	if occs == nil {
		occs = []room.Occupancy{}
	}
	return ctx.JSON(http.StatusOK, occs)
}

func (api *roomApi) retrieve(ctx echo.Context) error {
	rm, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding room by ID")
	}
	return ctx.JSON(http.StatusOK, rm)
}

func (api *roomApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	rm, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding room by ID")
	}

	var data room.UpdateRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRoom")
	}
	if err := data.Validate(reqCtx, api.validate, rm, api.svc); err != nil {
		return err
	}

	rm, err = api.svc.Update(reqCtx, rm, data)
	if err != nil {
		return errors.Wrap(err, "updating room")
	}
	return ctx.JSON(http.StatusOK, rm)
}

func (api *roomApi) destroy(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	rm, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding room by ID")
	}
	if err := api.svc.Delete(reqCtx, rm.ID); err != nil {
		return errors.Wrap(err, "deleting room")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// queryStudents lists the students currently allocated to a room.
func (api *roomApi) queryStudents(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	rm, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding room by ID")
	}
	allocs, err := api.svc.QueryAllocated(reqCtx, rm.ID)
	if err != nil {
		return errors.Wrap(err, "querying room allocations")
	}
	if allocs == nil {
		allocs = []room.AllocationDetail{}
	}
	return ctx.JSON(http.StatusOK, allocs)
}

func (api *roomApi) queryAllocations(ctx echo.Context) error {
	allocs, err := api.svc.QueryAllocated(ctx.Request().Context(), "")
	if err != nil {
		return errors.Wrap(err, "querying allocations")
	}
	if allocs == nil {
		allocs = []room.AllocationDetail{}
	}
	return ctx.JSON(http.StatusOK, allocs)
}

func (api *roomApi) allocate(ctx echo.Context) error {
	var data AllocationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AllocationRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	// fail fast on unknown students
	if _, err := api.studentSvc.GetByID(reqCtx, data.StudentID); err != nil {
		return errors.Wrap(err, "finding student by ID")
	}

	alloc, err := api.svc.Allocate(reqCtx, data.StudentID, data.RoomID)
	if err != nil {
		return errors.Wrap(err, "allocating room")
	}
	return ctx.JSON(http.StatusCreated, alloc)
}

func (api *roomApi) vacate(ctx echo.Context) error {
	alloc, err := api.svc.Vacate(ctx.Request().Context(), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "vacating student")
	}
	return ctx.JSON(http.StatusOK, alloc)
}
