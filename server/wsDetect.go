package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
)

// Progress messages buffered per subscriber before we give up on it
const detectSendBuffer = 64

// A websocket write that can't complete in this long means the client is gone
const detectWriteTimeout = 10 * time.Second

// detectHub fans batch progress out to subscribers. A browser watching the
// dashboard sees each image's result as it completes, instead of waiting for
// the whole batch response.
// broadcast never blocks: a subscriber whose buffer is full is dropped, so a
// stalled websocket client can't hold up a running batch.
type detectHub struct {
	log  logs.Log
	lock sync.Mutex
	subs map[chan any]bool
}

func newDetectHub(logger logs.Log) *detectHub {
	return &detectHub{
		log:  logger,
		subs: map[chan any]bool{},
	}
}

func (h *detectHub) subscribe() chan any {
	h.lock.Lock()
	defer h.lock.Unlock()
	ch := make(chan any, detectSendBuffer)
	h.subs[ch] = true
	return ch
}

// unsubscribe closes the channel. Calling it again for the same channel is a
// no-op, because the hub may have already dropped the subscriber.
func (h *detectHub) unsubscribe(ch chan any) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.subs[ch] {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *detectHub) broadcast(msg any) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.log.Warnf("Dropping detect progress subscriber (send buffer full)")
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// httpDetectProgress upgrades to a websocket that streams one JSON message
// per processed image, for every batch running on the server.
func (s *Server) httpDetectProgress(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	user := s.configDB.GetUser(r)
	if user == nil {
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return
	}
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("Detect progress websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	ch := s.detectHub.subscribe()
	defer s.detectHub.unsubscribe(ch)

	// We never expect messages from the client. The read loop exists to
	// detect disconnection.
	closed := make(chan bool)
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				close(closed)
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// The hub dropped us for falling behind
				return
			}
			c.SetWriteDeadline(time.Now().Add(detectWriteTimeout))
			if err := c.WriteJSON(msg); err != nil {
				s.Log.Warnf("Detect progress websocket write failed: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
