package dashboard

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/meatballhat/negroni-logrus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"parkmaster-dashboard/api"
	"parkmaster-dashboard/dashboard/jsonapi"
)

// Config is everything the HTTP side of the dashboard needs.
type Config struct {
	Addr   string
	Serial api.SerialOptions
}

type Server struct {
	serial  api.SerialOptions
	backend Backend
	store   *Store
	hub     *wsHub
	log     *logrus.Logger
	now     func() time.Time

	unsubscribe func()

	n *negroni.Negroni
	r *mux.Router
}

func NewServer(cfg *Config, backend Backend, store *Store, log *logrus.Logger) *Server {
	srv := &Server{
		serial:  cfg.Serial,
		backend: backend,
		store:   store,
		hub:     newHub(log),
		log:     log,
		now:     time.Now,

		n: negroni.New(),
		r: mux.NewRouter(),
	}
	srv.unsubscribe = store.Subscribe(srv.hub.broadcast)
	return srv
}

func (srv *Server) Setup() {
	srv.setupRoutes()
	srv.setupMiddleware()
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	srv.n.ServeHTTP(w, req)
}

// Close detaches the server from the store.
func (srv *Server) Close() {
	srv.unsubscribe()
}

func (srv *Server) setupRoutes() {
	srv.r.HandleFunc(`/`, srv.handleHome).Methods("GET").Name("home")
	srv.r.HandleFunc(`/serial/toggle`, srv.handleSerialToggle).Methods("POST").Name("serial-toggle")
	srv.r.HandleFunc(`/imageviewer`, srv.handleImageViewer).Methods("GET").Name("imageviewer")
	srv.r.HandleFunc(`/vehicles`, srv.handleVehicles).Methods("GET").Name("vehicles")
	srv.r.HandleFunc(`/api/health`, srv.handleAPIHealth).Methods("GET").Name("api-health")
	srv.r.HandleFunc(`/api/status`, srv.handleAPIStatus).Methods("GET").Name("api-status")
	srv.r.HandleFunc(`/api/images`, srv.handleAPIImages).Methods("GET").Name("api-images")
	srv.r.HandleFunc(`/api/vehicles`, srv.handleAPIVehicles).Methods("GET").Name("api-vehicles")
	srv.r.HandleFunc(`/ws`, srv.hub.handleWebSocket(srv.store)).Methods("GET").Name("ws")
	srv.r.Handle(`/metrics`, promhttp.Handler()).Methods("GET").Name("metrics")
	srv.r.PathPrefix(`/static/`).Handler(staticHandler()).Methods("GET").Name("static")
}

func (srv *Server) setupMiddleware() {
	rec := negroni.NewRecovery()
	rec.Logger = srv.log
	srv.n.Use(rec)
	srv.n.Use(negronilogrus.NewMiddlewareFromLogger(srv.log, "parkmaster"))
	srv.n.UseHandler(srv.r)
}

func (srv *Server) basePage(title string) page {
	return page{Title: title, Year: srv.now().Year()}
}

func (srv *Server) handleHome(w http.ResponseWriter, req *http.Request) {
	st := srv.store.Connection()
	p := homePage{page: srv.basePage(""), State: st}
	if !st.HealthCheckedAt.IsZero() {
		p.HealthAge = humanize.Time(st.HealthCheckedAt)
	}
	srv.render(w, "home", p)
}

// toggleSerial connects when disconnected and disconnects when connected.
// The last-checked time is stamped on every attempt; the connected flag only
// flips when the backend confirms.
func (srv *Server) toggleSerial(ctx context.Context) (ConnectionState, error) {
	token := srv.store.Begin(resourceConnection)
	wasConnected := srv.store.Connection().Connected

	var (
		p   *api.Payload
		err error
	)
	if wasConnected {
		p, err = srv.backend.DisconnectSerial(ctx)
	} else {
		p, err = srv.backend.ConnectSerial(ctx, srv.serial)
	}
	checked := srv.now().Format(lastCheckedLayout)

	applied := srv.store.CommitConnection(token, func(st *ConnectionState) {
		st.LastChecked = checked
		if err != nil {
			st.LastError = err.Error()
			st.Message = ""
			return
		}
		st.LastError = ""
		st.Message = p.Message()
		st.setConnected(!wasConnected)
	})
	if !applied {
		srv.log.WithField("token", token).Debug("discarding stale serial toggle result")
	}

	if err != nil {
		srv.log.WithError(err).WithField("connect", !wasConnected).Error("serial toggle failed")
	}
	return srv.store.Connection(), err
}

func (srv *Server) handleSerialToggle(w http.ResponseWriter, req *http.Request) {
	st, err := srv.toggleSerial(req.Context())
	if wantsJSON(req) {
		if err != nil {
			jsonapi.Error(w, err, http.StatusBadGateway)
			return
		}
		jsonapi.Respond(w, st, http.StatusOK)
		return
	}
	http.Redirect(w, req, "/", http.StatusSeeOther)
}

func (srv *Server) handleImageViewer(w http.ResponseWriter, req *http.Request) {
	p := imagesPage{page: srv.basePage("Image Viewer")}
	images, err := srv.backend.Images(req.Context())
	if err != nil {
		srv.log.WithError(err).Error("image list failed")
		p.Error = err.Error()
	}
	p.Images = images
	srv.render(w, "images", p)
}

// refreshVehicles loads both vehicles and commits them unless a newer
// refresh was issued meanwhile.
func (srv *Server) refreshVehicles(ctx context.Context) VehiclePair {
	token := srv.store.Begin(resourceVehicles)
	pair := loadVehicles(ctx, srv.backend)
	pair.UpdatedAt = srv.now()
	if !srv.store.CommitVehicles(token, pair) {
		srv.log.WithField("token", token).Debug("discarding stale vehicle lookup")
	}
	return pair
}

func (srv *Server) handleVehicles(w http.ResponseWriter, req *http.Request) {
	pair := srv.refreshVehicles(req.Context())
	srv.render(w, "vehicles", vehiclesPage{
		page:  srv.basePage("Manage Vehicles"),
		Cards: newVehicleCards(srv.backend, pair),
	})
}

func (srv *Server) handleAPIHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (srv *Server) handleAPIStatus(w http.ResponseWriter, req *http.Request) {
	jsonapi.Respond(w, srv.store.Connection(), http.StatusOK)
}

func (srv *Server) handleAPIImages(w http.ResponseWriter, req *http.Request) {
	images, err := srv.backend.Images(req.Context())
	if err != nil {
		srv.log.WithError(err).Error("image list failed")
		jsonapi.Error(w, err, http.StatusBadGateway)
		return
	}

	jsonapi.Respond(w, map[string][]api.ImageInfo{
		"images": images,
	}, http.StatusOK)
}

func (srv *Server) handleAPIVehicles(w http.ResponseWriter, req *http.Request) {
	jsonapi.Respond(w, srv.refreshVehicles(req.Context()), http.StatusOK)
}

func (srv *Server) render(w http.ResponseWriter, name string, data interface{}) {
	if err := render(w, name, data); err != nil {
		srv.log.WithError(err).WithField("page", name).Error("render failed")
	}
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}
