package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/recon"
)

type importApi struct {
	svc *recon.Service
}

func registerImportAPI(g *echo.Group, svc *recon.Service) {
	api := importApi{svc: svc}

	ig := g.Group("/imports")
	ig.POST("", api.stage)
	ig.GET("", api.query)
	ig.DELETE("", api.purge)

	dg := ig.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/rows", api.queryRows)
	dg.POST("/commit", api.commit)
}

// Handlers

// stage receives a bePaid export file (multipart field "file"), parses it and
// stages its rows for reconciliation.
func (api *importApi) stage(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(errors.New("an export file is required"),
			core.FieldError{Field: "file", Error: "an export file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	batch, rows, err := api.svc.Stage(ctx.Request().Context(), fh.Filename, f)
	if err != nil {
		return errors.Wrap(err, "staging import")
	}
	return ctx.JSON(http.StatusCreated, StageResponse{Batch: batch, Rows: rows})
}

func (api *importApi) query(ctx echo.Context) error {
	batches, err := api.svc.Batches(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	if batches == nil {
		batches = []recon.Batch{}
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *importApi) retrieve(ctx echo.Context) error {
	batch, err := api.svc.GetBatch(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, batch)
}

// queryRows is the raw-data view: every staged row of a batch with its bucket,
// proposed match and raw export cells.
func (api *importApi) queryRows(ctx echo.Context) error {
	filter := new(recon.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []recon.StagedPayment{})
	}
	filter.BatchID = ctx.Param("id")
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rows, err := api.svc.Queue(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying staged rows")
	}
	if rows == nil {
		rows = []recon.StagedPayment{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *importApi) commit(ctx echo.Context) error {
	rpt, err := api.svc.Commit(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rpt)
}

func (api *importApi) purge(ctx echo.Context) error {
	var query PurgeRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to PurgeRequest")
	}

	var before time.Time
	if query.Before != "" {
		var err error
		if before, err = time.Parse("2006-01-02", query.Before); err != nil {
			return core.NewValidationError(errors.New("invalid `before` date; expected YYYY-MM-DD"),
				core.FieldError{Field: "before", Error: "expected YYYY-MM-DD"})
		}
	}

	n, err := api.svc.Purge(ctx.Request().Context(), before, query.IDs...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, PurgeResponse{Purged: n})
}

type (
	StageResponse struct {
		Batch recon.Batch           `json:"batch"`
		Rows  []recon.StagedPayment `json:"rows"`
	}

	PurgeRequest struct {
		Before string   `query:"before"`
		IDs    []string `query:"id"`
	}

	PurgeResponse struct {
		Purged int `json:"purged"`
	}
)
