package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/coursepay/recon/core/recon"
)

type reconApi struct {
	svc *recon.Service
}

func registerReconAPI(g *echo.Group, svc *recon.Service) {
	api := reconApi{svc: svc}

	rg := g.Group("/recon")
	rg.GET("/queue", api.queue)
	rg.POST("/autolink", api.autolink)

	rowg := rg.Group("/rows/:id")
	rowg.POST("/confirm", api.confirmRow)
	rowg.POST("/reject", api.rejectRow)
}

// Handlers

func (api *reconApi) queue(ctx echo.Context) error {
	filter := new(recon.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []recon.StagedPayment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rows, err := api.svc.Queue(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying reconciliation queue")
	}
	if rows == nil {
		rows = []recon.StagedPayment{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *reconApi) confirmRow(ctx echo.Context) error {
	var data ConfirmRowRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmRowRequest")
	}

	sp, err := api.svc.ConfirmRow(ctx.Request().Context(), ctx.Param("id"), data.ContactID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sp)
}

func (api *reconApi) rejectRow(ctx echo.Context) error {
	sp, err := api.svc.RejectRow(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sp)
}

func (api *reconApi) autolink(ctx echo.Context) error {
	rpt, err := api.svc.Autolink(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "auto-linking payments")
	}
	return ctx.JSON(http.StatusOK, rpt)
}

type ConfirmRowRequest struct {
	// ContactID overrides the proposed match when set.
	ContactID string `json:"contact_id"`
}
