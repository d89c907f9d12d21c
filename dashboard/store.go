package dashboard

import (
	"sync"
	"time"

	"parkmaster-dashboard/api"
)

const (
	statusConnected    = "CONNECTED"
	statusDisconnected = "DISCONNECTED"

	// lastCheckedLayout renders like "Oct 19, 2026, 14:03:05".
	lastCheckedLayout = "Jan 02, 2006, 15:04:05"
)

// Resources guarded by their own request sequence.
const (
	resourceConnection = "connection"
	resourceHealth     = "health"
	resourceVehicles   = "vehicles"
)

// Event types pushed to subscribers.
const (
	eventConnection = "connection"
	eventVehicles   = "vehicles"
)

// ConnectionState is what the Home screen shows about the serial link and
// the backend.
type ConnectionState struct {
	Connected       bool      `json:"connected"`
	StatusText      string    `json:"statusText"`
	LastChecked     string    `json:"lastChecked"`
	LastError       string    `json:"lastError,omitempty"`
	Message         string    `json:"message,omitempty"`
	BackendHealthy  bool      `json:"backendHealthy"`
	HealthCheckedAt time.Time `json:"healthCheckedAt"`
}

func (st *ConnectionState) setConnected(connected bool) {
	st.Connected = connected
	if connected {
		st.StatusText = statusConnected
	} else {
		st.StatusText = statusDisconnected
	}
}

type VehiclePair struct {
	Previous  api.VehicleSnapshot `json:"previous"`
	Current   api.VehicleSnapshot `json:"current"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func (p VehiclePair) sameVehicles(o VehiclePair) bool {
	return p.Previous == o.Previous && p.Current == o.Current
}

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Store holds the dashboard state shared by every screen and subscriber.
//
// Writers take a token from Begin before issuing their backend call and hand
// it back on commit; a commit whose token is no longer the latest issued for
// that resource is dropped, so an older response never overwrites a newer one.
type Store struct {
	mu       sync.Mutex
	conn     ConnectionState
	vehicles *VehiclePair
	seq      map[string]uint64
	subs     map[int]func(Event)
	nextSub  int
}

func NewStore() *Store {
	s := &Store{
		seq:  make(map[string]uint64),
		subs: make(map[int]func(Event)),
	}
	s.conn.setConnected(false)
	return s
}

func (s *Store) Connection() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Vehicles returns the last committed pair, if any.
func (s *Store) Vehicles() (VehiclePair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vehicles == nil {
		return VehiclePair{}, false
	}
	return *s.vehicles, true
}

// Begin issues the next token for resource.
func (s *Store) Begin(resource string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[resource]++
	return s.seq[resource]
}

// CommitConnection applies fn to the connection state if token is current.
func (s *Store) CommitConnection(token uint64, fn func(*ConnectionState)) bool {
	s.mu.Lock()
	if s.seq[resourceConnection] != token {
		s.mu.Unlock()
		return false
	}
	fn(&s.conn)
	st := s.conn
	s.mu.Unlock()

	s.publish(Event{Type: eventConnection, Data: st})
	return true
}

func (s *Store) CommitHealth(token uint64, healthy bool, at time.Time) bool {
	s.mu.Lock()
	if s.seq[resourceHealth] != token {
		s.mu.Unlock()
		return false
	}
	changed := s.conn.BackendHealthy != healthy
	s.conn.BackendHealthy = healthy
	s.conn.HealthCheckedAt = at
	st := s.conn
	s.mu.Unlock()

	if changed {
		s.publish(Event{Type: eventConnection, Data: st})
	}
	return true
}

// CommitVehicles stores pair if token is current. Subscribers are only told
// when the vehicles differ from the stored pair.
func (s *Store) CommitVehicles(token uint64, pair VehiclePair) bool {
	s.mu.Lock()
	if s.seq[resourceVehicles] != token {
		s.mu.Unlock()
		return false
	}
	if s.vehicles != nil && s.vehicles.sameVehicles(pair) {
		s.mu.Unlock()
		return true
	}
	s.vehicles = &pair
	s.mu.Unlock()

	s.publish(Event{Type: eventVehicles, Data: pair})
	return true
}

// Subscribe registers fn for every committed change. fn runs on the
// committing goroutine and must not block.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns the events a new subscriber needs to catch up.
func (s *Store) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := []Event{{Type: eventConnection, Data: s.conn}}
	if s.vehicles != nil {
		events = append(events, Event{Type: eventVehicles, Data: *s.vehicles})
	}
	return events
}

func (s *Store) publish(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
