// Backend is a WebSocket echo server used for load balancer testing.
//
// Usage:
//
//	go run ./scripts/backend -port 8081 -name backend-0
//
// Every connection is greeted with a JSON message naming the backend and a
// connection id; after that each message is echoed back with its type kept.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Greeting is the first message sent on every connection.
type Greeting struct {
	Backend    string `json:"backend"`
	Connection string `json:"connection"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	name := flag.String("name", "", "name reported in the greeting (default: backend-<port>)")
	flag.Parse()

	if *name == "" {
		*name = fmt.Sprintf("backend-%d", *port)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("backend", *name))
	upgrader := websocket.Upgrader{}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := uuid.NewString()
		log.Info("connection opened",
			slog.String("connection", id),
			slog.String("from", r.RemoteAddr),
			slog.String("forwarded_for", r.Header.Get("X-Forwarded-For")))

		greeting, _ := json.Marshal(Greeting{Backend: *name, Connection: id})
		if err := conn.WriteMessage(websocket.TextMessage, greeting); err != nil {
			return
		}

		messages := 0
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				log.Info("connection closed",
					slog.String("connection", id),
					slog.Int("messages", messages),
					slog.String("reason", err.Error()))
				return
			}
			messages++
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting backend", slog.String("address", addr))
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
