package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aligovro/newschools-sub000/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TransactionLookup resolves a public transaction id; it returns an error when unknown.
type TransactionLookup func(transactionID string) (*models.PaymentTransaction, error)

// UpgradeStatusWS streams status updates for one transaction. The current status is
// sent right away; terminal transactions close after that first message.
func UpgradeStatusWS(hub *Hub, lookup TransactionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transactionId")
		t, err := lookup(transactionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "transaction not found"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := NewClient(transactionID)
		hub.Register(client)
		defer client.Close()
		// Re-read so a change between lookup and Register is not missed.
		if fresh, err := lookup(transactionID); err == nil {
			t = fresh
		}

		data, _ := json.Marshal(NewStatusMessage(t))
		client.trySend(data)
		if t.IsTerminal() {
			client.Close()
			writePump(client, conn)
			return
		}
		go writePump(client, conn)
		readPump(conn)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn) {
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
