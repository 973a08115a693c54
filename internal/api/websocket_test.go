package api

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TestHub_ConcurrentSubscribeDisconnect churns connections while broadcasting
// so connect/disconnect bookkeeping runs concurrently with hub writes.
func TestHub_ConcurrentSubscribeDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	go hub.Run()

	r := gin.New()
	r.GET("/stream", hub.Subscribe)
	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
				if err != nil {
					t.Errorf("Dial failed: %v", err)
					return
				}
				hub.Broadcast([]byte(`{"type":"cluster_alert"}`))
				conn.Close()
			}
		}()
	}
	wg.Wait()

	// Drain: remaining disconnect handlers finish against an empty hub.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mutex.Lock()
		remaining := len(hub.clients)
		hub.mutex.Unlock()
		if remaining == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Clients were not removed after disconnect")
}
