package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// The handlers write from two goroutines at once: the read loop answering
// pings and the event loop forwarding monitor messages. This drives the
// wrapper from many writers and checks every frame arrives intact.
func TestConnSerializesConcurrentWrites(t *testing.T) {
	const writers = 8
	const perWriter = 25

	received := make(chan Event, writers*perWriter)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer raw.Close()
		for {
			var msg PongResponse
			if err := raw.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg.Event
		}
	}))
	defer srv.Close()

	raw, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := Wrap(raw)
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := conn.WriteTyped(PongResponse{Event: EventPong}); err != nil {
					t.Errorf("writer %d: %v", n, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers*perWriter; i++ {
		select {
		case ev := <-received:
			if ev != EventPong {
				t.Fatalf("frame %d carried event %q, want %q", i, ev, EventPong)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of %d frames", i, writers*perWriter)
		}
	}
}

func TestConnWriteError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	got := make(chan ErrorResponse, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer raw.Close()
		var msg ErrorResponse
		if err := raw.ReadJSON(&msg); err != nil {
			return
		}
		got <- msg
	}))
	defer srv.Close()

	raw, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := Wrap(raw)
	defer conn.Close()

	if err := conn.WriteError("unknown action"); err != nil {
		t.Fatalf("write error frame: %v", err)
	}

	select {
	case msg := <-got:
		if msg.Event != EventError || msg.Error != "unknown action" {
			t.Errorf("frame = %+v, want error event with message", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error frame never arrived")
	}
}
