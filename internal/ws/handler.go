package ws

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/ws"
)

type wsHandler struct {
	notificationHub *ws.WebSocketNotificationHub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AccountTopic is the hub topic carrying notifications about accountID.
func AccountTopic(accountID chain.AccountID) string {
	return fmt.Sprintf("accounts/%s", chain.NormalizeAccountID(accountID))
}

func RegisterRoutes(rg *gin.RouterGroup, hub *ws.WebSocketNotificationHub) {
	handler := wsHandler{
		notificationHub: hub,
	}

	routes := rg.Group("/ws")
	routes.GET("/:accountId", handler.serveWs)
}

func (wsh *wsHandler) serveWs(c *gin.Context) {
	topic := AccountTopic(c.Param("accountId"))
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	defer wsh.notificationHub.UnregisterListener(topic, conn)

	wsh.notificationHub.RegisterListener(topic, conn)

	for {
		var buffer any
		if err := conn.ReadJSON(&buffer); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("Websocket closed")
			return
		}
	}
}
