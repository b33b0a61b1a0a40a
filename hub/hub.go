// Package hub relays live-field updates between the participants of a
// room and keeps everyone informed of how many participants there are.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"collabtext/protocol"
)

// Hub maintains the rooms with members on this instance.
type Hub struct {
	broker Broker
	// codec frames everything that passes through the broker. Members
	// that negotiated another codec get transcoded frames.
	codec    protocol.Codec
	codecs   []protocol.Codec
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	name    string
	members map[*Client]struct{}
	sub     Subscription
}

// New returns a Hub that fans out through broker with codec. Clients
// may negotiate any known codec; codec is preferred and is also used
// for clients that ask for no subprotocol.
func New(broker Broker, codec protocol.Codec, logger *slog.Logger) *Hub {
	codecs := protocol.Codecs(codec)
	return &Hub{
		broker: broker,
		codec:  codec,
		codecs: codecs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    protocol.Subprotocols(codecs),
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

// Handler routes /ws/{room} to the relay and /healthz to a liveness
// probe.
func (h *Hub) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws/{room}", h.serveWs).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return router
}

// Members returns how many participants of name are connected to this
// instance.
func (h *Hub) Members(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[name]; ok {
		return len(r.members)
	}
	return 0
}

func (h *Hub) serveWs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["room"]
	if offered := websocket.Subprotocols(r); len(offered) > 0 && !h.speaksAny(offered) {
		h.logger.Warn("no common codec", "room", name, "offered", offered)
		http.Error(w, "no supported subprotocol offered", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "room", name, "error", err)
		return
	}
	client := &Client{
		id:    uuid.NewString(),
		room:  name,
		hub:   h,
		conn:  conn,
		codec: h.codecFor(conn.Subprotocol()),
		send:  make(chan []byte, sendBuffer),
	}
	ctx := context.WithoutCancel(r.Context())
	if err := h.join(ctx, client); err != nil {
		h.logger.Error("join failed", "room", name, "client", client.id, "error", err)
		conn.Close()
		return
	}
	go client.writePump()
	client.readPump(ctx)
}

func (h *Hub) speaksAny(offered []string) bool {
	for _, name := range offered {
		for _, c := range h.codecs {
			if c.Subprotocol() == name {
				return true
			}
		}
	}
	return false
}

func (h *Hub) codecFor(subprotocol string) protocol.Codec {
	for _, c := range h.codecs {
		if c.Subprotocol() == subprotocol {
			return c
		}
	}
	return h.codec
}

// join adds c to its room, subscribing the room first if this instance
// has no members there yet. The broker is never called with h.mu held.
func (h *Hub) join(ctx context.Context, c *Client) error {
	h.mu.Lock()
	r, ok := h.rooms[c.room]
	if ok {
		r.members[c] = struct{}{}
	}
	h.mu.Unlock()

	if !ok {
		sub, err := h.broker.Subscribe(ctx, c.room)
		if err != nil {
			return err
		}
		h.mu.Lock()
		if r, ok = h.rooms[c.room]; ok {
			// Another client created the room meanwhile.
			sub.Close()
		} else {
			r = &room{name: c.room, members: make(map[*Client]struct{}), sub: sub}
			h.rooms[c.room] = r
			go h.forward(r)
		}
		r.members[c] = struct{}{}
		h.mu.Unlock()
	}

	n, err := h.broker.Join(ctx, c.room)
	if err != nil {
		h.mu.Lock()
		delete(r.members, c)
		if len(r.members) == 0 && h.rooms[c.room] == r {
			delete(h.rooms, c.room)
			r.sub.Close()
		}
		h.mu.Unlock()
		return err
	}
	h.logger.Info("client joined", "room", c.room, "client", c.id, "participants", n)
	h.publishCount(ctx, c.room, n)
	return nil
}

func (h *Hub) leave(ctx context.Context, c *Client) {
	h.mu.Lock()
	if r, ok := h.rooms[c.room]; ok {
		if _, member := r.members[c]; member {
			delete(r.members, c)
			c.closeSend()
		}
		if len(r.members) == 0 {
			delete(h.rooms, c.room)
			r.sub.Close()
		}
	}
	h.mu.Unlock()

	n, err := h.broker.Leave(ctx, c.room)
	if err != nil {
		h.logger.Error("leave failed", "room", c.room, "client", c.id, "error", err)
		return
	}
	h.logger.Info("client left", "room", c.room, "client", c.id, "participants", n)
	h.publishCount(ctx, c.room, n)
}

func (h *Hub) publishCount(ctx context.Context, name string, n int64) {
	frame, err := h.codec.Encode(protocol.EventUserCount, "", protocol.UserCountPayload{Count: n})
	if err != nil {
		h.logger.Error("encoding user count", "room", name, "error", err)
		return
	}
	if err := h.broker.Publish(ctx, name, frame); err != nil {
		h.logger.Error("publishing user count", "room", name, "error", err)
	}
}

// forward delivers frames from the broker to local members of r until
// the subscription closes.
func (h *Hub) forward(r *room) {
	for frame := range r.sub.Frames() {
		msg, err := h.codec.Decode(frame)
		if err != nil {
			h.logger.Warn("dropping undecodable frame", "room", r.name, "error", err)
			continue
		}
		h.deliver(r, frame, msg)
	}
}

// deliver sends frame, the broker encoding of msg, to every member of r
// except its sender, transcoding once per codec in use. Members that
// cannot keep up are dropped.
func (h *Hub) deliver(r *room, frame []byte, msg protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	framed := map[string][]byte{h.codec.Subprotocol(): frame}
	for c := range r.members {
		if msg.From != "" && c.id == msg.From {
			continue
		}
		out, ok := framed[c.codec.Subprotocol()]
		if !ok {
			var err error
			if out, err = protocol.Transcode(msg, c.codec); err != nil {
				h.logger.Warn("transcoding frame", "room", r.name, "codec", c.codec.Subprotocol(), "error", err)
				continue
			}
			framed[c.codec.Subprotocol()] = out
		}
		select {
		case c.send <- out:
		default:
			h.logger.Warn("dropping slow client", "room", r.name, "client", c.id)
			delete(r.members, c)
			c.closeSend()
		}
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)
