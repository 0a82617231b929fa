package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"settlement-service/config"
	"settlement-service/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by CORS on the REST side; sockets carry hints only
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StaffSocket streams every event of the tenant.
func StaffSocket(c *gin.Context) {
	serveTopic(c, realtime.StaffTopic(tenantOf(c)))
}

// CustomerSocket streams the events of one table session.
func CustomerSocket(c *gin.Context) {
	serveTopic(c, realtime.CustomerTopic(tenantOf(c), c.Param("table"), c.Param("session")))
}

func serveTopic(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		config.LogError(config.GetLogger(), "controllers", "serveTopic", "websocket upgrade", topic, err)
		return
	}
	realtime.ServeConn(conn, hub.Subscribe(topic))
}
