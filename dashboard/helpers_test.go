package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"parkmaster-dashboard/api"
)

// fakeBackend serves the ParkMaster backend surface from memory.
type fakeBackend struct {
	mu sync.Mutex

	images       []string
	imagesStatus int

	previous     *api.VehicleSnapshot
	current      *api.VehicleSnapshot
	previousHang bool
	vehicleDelay time.Duration

	// meetBoth holds each vehicle lookup until the other one has arrived
	// too. A lookup left waiting for meetWait is answered with a 504.
	meetBoth bool
	meetWait time.Duration
	arrived  int
	met      chan struct{}

	healthStatus  int
	healthDelay   time.Duration
	connectStatus int
	plainReplies  bool
	connectBodies []map[string]interface{}
	disconnects   int
}

func (fb *fakeBackend) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(`/health`, func(w http.ResponseWriter, req *http.Request) {
		fb.mu.Lock()
		st, delay := fb.healthStatus, fb.healthDelay
		fb.mu.Unlock()
		if !sleepCtx(req.Context(), delay) {
			return
		}
		if st != 0 {
			writeJSON(w, st, map[string]string{"detail": "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods("GET")
	r.HandleFunc(`/images/list`, func(w http.ResponseWriter, req *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.imagesStatus != 0 {
			writeJSON(w, fb.imagesStatus, map[string]string{"detail": "image store unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, fb.images)
	}).Methods("GET")
	r.HandleFunc(`/serial/connect`, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(req.Body).Decode(&body)
		fb.mu.Lock()
		fb.connectBodies = append(fb.connectBodies, body)
		st, plain := fb.connectStatus, fb.plainReplies
		fb.mu.Unlock()
		if st != 0 {
			writeJSON(w, st, map[string]string{"detail": "Failed to connect to serial port"})
			return
		}
		if plain {
			_, _ = w.Write([]byte("OK"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully connected to serial port"})
	}).Methods("POST")
	r.HandleFunc(`/serial/disconnect`, func(w http.ResponseWriter, req *http.Request) {
		fb.mu.Lock()
		fb.disconnects++
		plain := fb.plainReplies
		fb.mu.Unlock()
		if plain {
			_, _ = w.Write([]byte("OK"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Disconnected from serial port"})
	}).Methods("POST")
	r.HandleFunc(`/vehicles/{which}`, func(w http.ResponseWriter, req *http.Request) {
		fb.mu.Lock()
		var v *api.VehicleSnapshot
		hang := false
		switch mux.Vars(req)["which"] {
		case "previous":
			v, hang = fb.previous, fb.previousHang
		case "current":
			v = fb.current
		}
		delay, meet := fb.vehicleDelay, fb.meetBoth
		fb.mu.Unlock()

		if meet && !fb.waitForPair() {
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"detail": "lookup arrived alone"})
			return
		}
		if !sleepCtx(req.Context(), delay) {
			return
		}

		if hang {
			select {
			case <-req.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		if v == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, v)
	}).Methods("GET")
	return r
}

func (fb *fakeBackend) waitForPair() bool {
	fb.mu.Lock()
	if fb.met == nil {
		fb.met = make(chan struct{})
	}
	fb.arrived++
	if fb.arrived == 2 {
		close(fb.met)
	}
	met, wait := fb.met, fb.meetWait
	fb.mu.Unlock()

	select {
	case <-met:
		return true
	case <-time.After(wait):
		return false
	}
}

// sleepCtx waits for d and reports whether the request is still wanted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (fb *fakeBackend) setCurrent(v api.VehicleSnapshot) {
	fb.mu.Lock()
	fb.current = &v
	fb.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, st int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(st)
	_ = json.NewEncoder(w).Encode(v)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

type testEnv struct {
	fb      *fakeBackend
	backend *httptest.Server
	client  *api.Client
	store   *Store
	srv     *Server
}

func newTestEnv(t *testing.T, fb *fakeBackend) *testEnv {
	return newTestEnvWithTimeout(t, fb, 200*time.Millisecond)
}

func newTestEnvWithTimeout(t *testing.T, fb *fakeBackend, timeout time.Duration) *testEnv {
	if fb == nil {
		fb = &fakeBackend{}
	}
	backend := httptest.NewServer(fb.handler())
	t.Cleanup(backend.Close)

	client := api.NewClient(backend.URL, api.WithLogger(quietLogger()), api.WithTimeout(timeout))
	store := NewStore()
	srv := NewServer(&Config{Addr: ":0"}, client, store, quietLogger())
	srv.Setup()
	t.Cleanup(srv.Close)

	return &testEnv{fb: fb, backend: backend, client: client, store: store, srv: srv}
}

func (env *testEnv) makeRequest(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "http://example.com"+path, strings.NewReader(""))
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	return w
}

func (env *testEnv) makeJSONRequest(method, path string) *httptest.ResponseRecorder {
	return env.makeRequest(method, path, map[string]string{"Accept": "application/json"})
}

// fixedClock returns each time in turn, repeating the last one.
func fixedClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func sampleVehicle(plate string, color api.StatusColor) api.VehicleSnapshot {
	return api.VehicleSnapshot{
		ImageName:   "image_" + plate + ".jpg",
		StatusText:  "Registered vehicle",
		StatusColor: color,
		Plate:       plate,
		StudentID:   "S1234567",
		Email:       "jdoe@example.edu",
		Name:        "J. Doe",
	}
}
