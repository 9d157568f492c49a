package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes the live attendance feed. A watcher opens a websocket
// on its session and receives every committed status transition as a JSON
// StatusUpdate payload.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		watcher := hub.Register(c.Params("sessionID"))

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for update := range watcher.Send {
				if err := c.WriteMessage(websocket.TextMessage, update); err != nil {
					return
				}
			}
		}()

		// Watchers only listen; the read loop exists to notice disconnects.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		// Unregister closes Send, which releases the writer.
		hub.Unregister(watcher)
		<-writerDone
	}))
}
