// Package main runs a demo WebSocket client for assignment events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type streamFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	TS   string         `json:"ts,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the commit events are not missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/assignments/stream", RawQuery: "topics=assignments,cycles,orders"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f streamFrame
			if err := c.ReadJSON(&f); err != nil {
				log.Printf("read: %v", err)
				return
			}
			data, _ := json.Marshal(f.Data)
			log.Printf("WS <- %s: %s", f.Type, string(data))
		}
	}()

	// Run one assignment cycle
	body := []byte(`{
		"orders": [
			{"id": "o1", "pickup": {"lat": 52.52, "lng": 13.405}, "dropoff": {"lat": 52.53, "lng": 13.41}, "serviceType": "express"},
			{"id": "o2", "pickup": {"lat": 52.50, "lng": 13.39}, "dropoff": {"lat": 52.49, "lng": 13.38}}
		],
		"couriers": [
			{"id": "c1", "location": {"lat": 52.521, "lng": 13.404}, "state": "available"},
			{"id": "c2", "location": {"lat": 52.505, "lng": 13.395}, "state": "available"}
		]
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/assignments/dynamic", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var out struct {
		CycleID     string `json:"cycleId"`
		Assignments []struct {
			OrderID   string `json:"orderId"`
			CourierID string `json:"courierId"`
		} `json:"assignments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("cycle %s committed %d assignments", out.CycleID, len(out.Assignments))

	// Wait briefly to receive the stream events
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
