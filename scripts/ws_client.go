// Package main submits an instance to a running service and prints its
// progress events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"

	"ridesim/internal/model"
)

const demoInstance = `3 4 2 3 2 10
0 0 1 3 2 9
1 2 1 0 0 9
2 0 2 2 0 9
`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	body := []byte(demoInstance)
	if len(os.Args) > 1 {
		b, err := os.ReadFile(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
		body = b
	}

	resp, err := http.Post(base+"/v1/simulations?restarts=4", "text/plain", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("create simulation: %s", resp.Status)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", created.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/simulations/" + created.ID + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		var evt model.Event
		if err := c.ReadJSON(&evt); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			return
		}
		data, _ := json.Marshal(evt.Data)
		log.Printf("WS <- %s: %s", evt.Type, data)
	}
}
