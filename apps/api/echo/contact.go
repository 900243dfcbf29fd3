package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
)

type contactApi struct {
	svc      *contact.Service
	orderSvc *order.Service
}

func registerContactAPI(g *echo.Group, svc *contact.Service, orderSvc *order.Service) {
	api := contactApi{svc: svc, orderSvc: orderSvc}

	cg := g.Group("/contacts")
	cg.POST("", api.create)
	cg.GET("", api.query)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/promote", api.promote)
	dg.GET("/orders", api.queryOrders)
}

// Handlers

func (api *contactApi) create(ctx echo.Context) error {
	var data contact.NewContact
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewContact")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating contact")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *contactApi) query(ctx echo.Context) error {
	filter := new(contact.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []contact.Contact{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	contacts, err := api.svc.Filter(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying contacts")
	}
	if contacts == nil {
		contacts = []contact.Contact{}
	}
	return ctx.JSON(http.StatusOK, contacts)
}

func (api *contactApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *contactApi) update(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data contact.UpdateContact
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateContact")
	}
	if err := data.Validate(api.svc, c); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating contact")
	}
	return ctx.JSON(http.StatusOK, c)
}

// promote turns a ghost contact into a regular one, optionally filling in the
// identified person's details.
func (api *contactApi) promote(ctx echo.Context) error {
	var data contact.UpdateContact
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateContact")
	}

	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := data.Validate(api.svc, c); err != nil {
		return err
	}

	c, err = api.svc.PromoteGhost(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "promoting ghost contact")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *contactApi) queryOrders(ctx echo.Context) error {
	if _, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	orders, err := api.orderSvc.FilterByContact(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying contact orders")
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}
