package live

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"studiobook/internal/events"
	"studiobook/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// SlotUpdate is pushed to subscribers when a slot's occupancy changes.
type SlotUpdate struct {
	SlotID          int64  `json:"slot_id"`
	Date            string `json:"date"`
	CapacityCurrent int    `json:"capacity_current"`
	CapacityMax     int    `json:"capacity_max"`
	Available       bool   `json:"available"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan SlotUpdate
}

// Hub fans slot updates out to websocket clients watching a date.
type Hub struct {
	mu       sync.Mutex
	dates    map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *zerolog.Logger
}

// NewHub accepts connections from allowedOrigins; empty allows any origin.
func NewHub(allowedOrigins []string, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{dates: make(map[string]map[*subscriber]struct{}), logger: logger}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}

// Subscribe feeds reservation events into the hub.
func (h *Hub) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventReservationCreated, h.Handle)
	bus.Subscribe(events.EventReservationCancelled, h.Handle)
}

func (h *Hub) Handle(event *events.Event) error {
	var p events.ReservationEventPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	h.Broadcast(SlotUpdate{
		SlotID:          p.SlotID,
		Date:            p.Date,
		CapacityCurrent: p.CapacityCurrent,
		CapacityMax:     p.CapacityMax,
		Available:       p.CapacityCurrent < p.CapacityMax,
	})
	return nil
}

// Broadcast queues update for every subscriber of its date. Subscribers
// that cannot keep up are dropped.
func (h *Hub) Broadcast(update SlotUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.dates[update.Date] {
		select {
		case sub.send <- update:
		default:
			h.removeLocked(update.Date, sub)
		}
	}
}

// Subscribers reports how many clients watch date.
func (h *Hub) Subscribers(date string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.dates[date])
}

// ServeHTTP upgrades the request and streams updates for ?date=YYYY-MM-DD.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan SlotUpdate, sendBuffer)}
	h.mu.Lock()
	if h.dates[date] == nil {
		h.dates[date] = make(map[*subscriber]struct{})
	}
	h.dates[date][sub] = struct{}{}
	h.mu.Unlock()

	go h.writePump(sub)
	h.readPump(date, sub)
}

func (h *Hub) removeLocked(date string, sub *subscriber) {
	subs, ok := h.dates[date]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.dates, date)
	}
}

// readPump discards client frames and unregisters on disconnect.
func (h *Hub) readPump(date string, sub *subscriber) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(date, sub)
		h.mu.Unlock()
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case update, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
