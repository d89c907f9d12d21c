package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"parkmaster-dashboard/api"
	"parkmaster-dashboard/dashboard"
)

var flags = []cli.Flag{
	cli.StringFlag{
		Name:   "a, addr",
		Value:  ":8080",
		Usage:  "address the dashboard listens on",
		EnvVar: "PARKMASTER_ADDR",
	},
	cli.StringFlag{
		Name:   "b, backend-url",
		Value:  api.DefaultBaseURL,
		Usage:  "base address of the ParkMaster backend",
		EnvVar: "PARKMASTER_BACKEND_URL",
	},
	cli.DurationFlag{
		Name:   "request-timeout",
		Value:  api.DefaultTimeout,
		Usage:  "timeout for a single backend call",
		EnvVar: "PARKMASTER_REQUEST_TIMEOUT",
	},
	cli.IntFlag{
		Name:   "refresh-min-secs",
		Value:  10,
		Usage:  "minimum seconds between backend polls",
		EnvVar: "PARKMASTER_REFRESH_MIN_SECS",
	},
	cli.DurationFlag{
		Name:   "shutdown-timeout",
		Value:  10 * time.Second,
		Usage:  "HTTP server shutdown timeout",
		EnvVar: "PARKMASTER_SHUTDOWN_TIMEOUT",
	},
	cli.StringFlag{
		Name:   "serial-port",
		Value:  api.DefaultSerialPort,
		Usage:  "serial port the backend should open on connect",
		EnvVar: "PARKMASTER_SERIAL_PORT",
	},
	cli.IntFlag{
		Name:   "serial-baudrate",
		Value:  api.DefaultBaudRate,
		Usage:  "baud rate the backend should use on connect",
		EnvVar: "PARKMASTER_SERIAL_BAUDRATE",
	},
	cli.StringFlag{
		Name:   "log-format",
		Value:  "text",
		Usage:  "log output format (text or json)",
		EnvVar: "PARKMASTER_LOG_FORMAT",
	},
	cli.BoolFlag{
		Name:   "debug",
		Usage:  "enable debug logging",
		EnvVar: "PARKMASTER_DEBUG,DEBUG",
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "parkmaster-dashboard"
	app.Usage = "ParkMaster Pro administrative dashboard"
	app.Flags = flags
	app.Action = runDashboard

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("dashboard exited")
	}
}

func newLogger(c *cli.Context) *logrus.Logger {
	log := logrus.New()
	if c.String("log-format") == "json" {
		log.Formatter = &logrus.JSONFormatter{}
	}
	if c.Bool("debug") {
		log.Level = logrus.DebugLevel
	}
	return log
}

func runDashboard(c *cli.Context) error {
	log := newLogger(c)

	client := api.NewClient(c.String("backend-url"),
		api.WithTimeout(c.Duration("request-timeout")),
		api.WithLogger(log.WithField("component", "api")))

	store := dashboard.NewStore()
	cfg := &dashboard.Config{
		Addr: c.String("addr"),
		Serial: api.SerialOptions{
			Port:     c.String("serial-port"),
			BaudRate: c.Int("serial-baudrate"),
		},
	}
	srv := dashboard.NewServer(cfg, client, store, log)
	srv.Setup()
	defer srv.Close()

	poll := dashboard.NewPoller(client, store, log.WithField("component", "poller"),
		time.Duration(c.Int("refresh-min-secs"))*time.Second, c.Duration("request-timeout"))

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr,
			"backend": client.BaseURL(),
		}).Info("server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	pctx, pcancel := context.WithCancel(context.Background())
	defer pcancel()
	go poll.Run(pctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
		log.Info("shutdown initiated")
	case err := <-errs:
		return err
	}

	pcancel()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
		return err
	}
	log.Info("HTTP server shut down successfully")
	return nil
}
