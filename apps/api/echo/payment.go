package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
)

type paymentApi struct {
	svc      *payment.Service
	reconSvc *recon.Service
}

func registerPaymentAPI(g *echo.Group, svc *payment.Service, reconSvc *recon.Service) {
	api := paymentApi{svc: svc, reconSvc: reconSvc}

	pg := g.Group("/payments")
	pg.GET("", api.query)
	pg.GET("/counts-by-batch", api.countsByBatch)
	pg.GET("/unlinked", api.queryUnlinked)
	pg.GET("/unlinked/:id", api.unlinkedDetail)

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/link", api.link)
	dg.POST("/unlink", api.unlink)
}

// Handlers

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []payment.Payment{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	payments, err := api.svc.Filter(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

// countsByBatch reports how many ledger payments each import batch produced.
func (api *paymentApi) countsByBatch(ctx echo.Context) error {
	counts, err := api.svc.CountsByBatch(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting payments by batch")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *paymentApi) queryUnlinked(ctx echo.Context) error {
	payments, err := api.svc.QueryUnlinked(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying unlinked payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

// unlinkedDetail returns a payment together with its contact match candidates
// so an operator can pick one.
func (api *paymentApi) unlinkedDetail(ctx echo.Context) error {
	p, candidates, err := api.reconSvc.UnlinkedDetail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if candidates == nil {
		candidates = []recon.Candidate{}
	}
	return ctx.JSON(http.StatusOK, UnlinkedDetailResponse{Payment: p, Candidates: candidates})
}

func (api *paymentApi) link(ctx echo.Context) error {
	var data LinkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	var orderID *string
	if data.OrderID != "" {
		orderID = &data.OrderID
	}
	p, err := api.svc.Link(ctx.Request().Context(), ctx.Param("id"), data.ContactID, orderID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) unlink(ctx echo.Context) error {
	p, err := api.svc.Unlink(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

type (
	UnlinkedDetailResponse struct {
		Payment    payment.Payment   `json:"payment"`
		Candidates []recon.Candidate `json:"candidates"`
	}

	LinkRequest struct {
		ContactID string `json:"contact_id" validate:"required"`
		OrderID   string `json:"order_id"`
	}
)

func (lr *LinkRequest) Validate() error {
	lr.ContactID = core.CleanString(lr.ContactID)
	lr.OrderID = core.CleanString(lr.OrderID)
	return core.Validate.Struct(lr)
}
