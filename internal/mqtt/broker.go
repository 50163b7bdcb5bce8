package mqtt

import (
	"fmt"
	"log/slog"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// NewBroker creates an in-process broker listening on addr that accepts
// every client. The caller runs Serve and Close.
func NewBroker(addr string, logger *slog.Logger) (*mqttbroker.Server, error) {
	server := mqttbroker.New(&mqttbroker.Options{
		Logger: logger.With("component", "mqtt-broker"),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker auth hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("broker listener %s: %w", addr, err)
	}
	return server, nil
}
