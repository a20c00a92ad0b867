package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ProCodeJH/antigravity-remote-control/config"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/admission"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/api"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/authority"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage/memory"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage/postgres"
)

type relayServer struct {
	cfg    *config.Config
	quitCh chan bool
	doneCh chan bool

	nc    *nats.Conn
	db    *sqlx.DB
	errCh chan error
	wg    sync.WaitGroup

	ctrl    *relay.Controller
	adm     *admission.Controller
	sweeper *relay.Sweeper
}

func init() {
	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}
	logrus.SetFormatter(formatter)

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	// Only log the warning severity or above.
	log.SetLevel(log.InfoLevel)
}

func newRelayServer(cfg *config.Config) (*relayServer, error) {
	s := &relayServer{
		cfg:    cfg,
		quitCh: make(chan bool),
		doneCh: make(chan bool),

		errCh: make(chan error, 1),
		wg:    sync.WaitGroup{},
	}

	// The broker is optional. Without it the relay runs standalone and
	// admin event fan-out is disabled.
	if cfg.NATSServerURL != "" {
		nc, err := nats.Connect(cfg.NATSServerURL,
			nats.DrainTimeout(10*time.Second),
			nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
				s.errCh <- err
			}),
			nats.DisconnectHandler(func(_ *nats.Conn) {
				log.Warn("server lost NATS connection, shutting down")
				syscall.Kill(syscall.Getpid(), syscall.SIGINT)
			}))
		if err != nil {
			return nil, err
		}
		s.nc = nc
	}

	// The database is optional too. It mirrors session and device
	// lifecycle for audit; the in-memory store stays authoritative.
	if cfg.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		s.db = db
	}

	return s, nil
}

func (s *relayServer) Serve() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(logger())

	store := memory.NewStore()

	s.adm = admission.NewController(admission.Limits{
		RequestWindow:    s.cfg.RateWindow,
		MaxRequests:      s.cfg.RateMax,
		MaxConnsPerIP:    s.cfg.MaxConnsPerIP,
		MaxSessionsPerIP: s.cfg.MaxSessionsPerIP,
	})

	events := relay.NewEventPublisher(s.nc)

	// Create the controller
	s.ctrl = relay.NewController(relay.Options{
		SessionTTL:            s.cfg.SessionTTL,
		HeartbeatInterval:     s.cfg.HeartbeatInterval,
		HeartbeatTimeout:      s.cfg.HeartbeatTimeout,
		DeviceOnlineTimeout:   s.cfg.DeviceTimeout,
		AllowImplicitSessions: s.cfg.AllowImplicitSessions,
		RequireTokens:         s.cfg.RequireTokens,
	}, store, authority.New(s.cfg.TokenSecret), s.adm, events)

	if s.db != nil {
		s.ctrl.SetMirror(postgres.NewStore(s.db))
	}

	s.sweeper = relay.NewSweeper(s.ctrl)
	s.sweeper.Start()

	// Register relay endpoint
	relayHandler := relay.NewHandler(s.ctrl, s.adm)
	relayHandler.RegisterRoutes(e)

	// Register API endpoints
	apiHandler := api.NewHandler(s.nc, store, s.ctrl, s.adm)
	apiHandler.RegisterRoutes(e)

	go func() {
		log.WithFields(log.Fields{
			"host": s.cfg.BindHost,
			"port": s.cfg.BindPort,
		}).Info("Starting server")

		if err := e.Start(fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.BindPort)); err != nil {
			e.Logger.Info("Shutting down the server")
		}
	}()

	// Wait until receiving the quit signal
	<-s.quitCh
	log.Info("Shutdown signal received")

	s.sweeper.Stop()
	s.ctrl.Shutdown()
	s.adm.Stop()

	// Create a 10 second timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the echo web server
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Error(err)
	}

	// We've done!
	s.doneCh <- true
}

// Logger returns a middleware that logs HTTP requests.
func logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			var err error
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			reqSizeStr := req.Header.Get(echo.HeaderContentLength)
			if reqSizeStr == "" {
				reqSizeStr = "0"
			}
			reqSize, perr := strconv.ParseInt(reqSizeStr, 10, 0)
			if perr != nil {
				reqSize = -1
			}
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}

			log.WithFields(log.Fields{
				"timestamp":     stop.Format(time.RFC3339),
				"id":            id,
				"remote_ip":     c.RealIP(),
				"host":          req.Host,
				"method":        req.Method,
				"uri":           req.RequestURI,
				"protocol":      req.Proto,
				"user_agent":    req.UserAgent(),
				"status":        res.Status,
				"status_text":   http.StatusText(res.Status),
				"referer":       req.Referer(),
				"error":         errMsg,
				"bytes_in":      reqSize,
				"bytes_out":     res.Size,
				"latency":       stop.Sub(start).Nanoseconds(),
				"latency_human": stop.Sub(start).String(),
			}).Infof("%s %s %s %d %s", req.Method, req.RequestURI, req.Proto,
				res.Status, strconv.FormatInt(res.Size, 10))

			return err
		}
	}
}

func (s *relayServer) Shutdown() {
	if s.nc != nil {
		s.nc.Drain()
	}

	// Send the quit signal to the server.Serve() routine
	s.quitCh <- true

	// Wait up to 10 seconds
	select {
	case <-s.doneCh:
		log.Info("Shutdown server successful")
	case <-time.After(10 * time.Second):
		log.Error("Shutdown server failed")
	}

	if s.db != nil {
		s.db.Close()
	}
}

func RunServeRelay(cfg *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := newRelayServer(cfg)
		if err != nil {
			log.Error("failed to create new server instance: ", err)
			os.Exit(1)
		}

		go s.Serve()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt)
		<-quitCh

		// Shutdown the server
		s.Shutdown()
	}
}
