package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		ReconSvc   *recon.Service
		ContactSvc *contact.Service
		OrderSvc   *order.Service
		PaymentSvc *payment.Service
		Logger     core.Logger
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = core.Conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerImportAPI(v1, s.opts.ReconSvc)
	registerReconAPI(v1, s.opts.ReconSvc)
	registerPaymentAPI(v1, s.opts.PaymentSvc, s.opts.ReconSvc)
	registerContactAPI(v1, s.opts.ContactSvc, s.opts.OrderSvc)
}

func (s *server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrs := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("API server listening on " + s.opts.Address)
		serverErrs <- s.app.Start(s.opts.Address)
	}()

	select {
	case err := <-serverErrs:
		s.opts.Logger.Error("server error", err)
	case sig := <-s.shutdown:
		s.opts.Logger.Info("shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.ShutdownTimeout)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			s.opts.Logger.Error("graceful shutdown failed", err)
			_ = s.app.Close()
		}
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// signalShutdown triggers a graceful shutdown; called on unrecoverable errors.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to CoursePay Recon API!")
}
