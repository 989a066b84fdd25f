// Package config seeds the bus from the compiled-in device table. Each
// top-level section of the device's JSON becomes one retained message on
// config/<section>, so a service subscribes to its own slice and never
// sees anyone else's.
package config

import (
	"context"
	"encoding/json"
	"errors"

	"songbird-go/bus"
)

const configPrefix = "config"

// CtxDeviceKey is the context key the launcher uses to hand the device ID
// to the publisher.
const CtxDeviceKey = "device"

// EmbeddedConfigLookup maps a device ID to its compiled-in config blob.
// Tests swap it out to inject fixtures.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Service splits the embedded device config into per-section retained
// messages. It runs once at boot; the retained flag does the rest.
type Service struct{}

func NewConfigService() *Service {
	return &Service{}
}

// Start publishes in the background so the boot sequence is not blocked
// on bus delivery.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publish(ctx, conn); err != nil {
			println("Warn: config publish failed:", err.Error())
		}
	}()
}

func (s *Service) publish(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("no device ID in context")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no config table entry for " + device)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return errors.New("config for " + device + " is not a JSON object")
	}

	for name, body := range sections {
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return errors.New("config section " + name + ": " + err.Error())
		}
		conn.Publish(conn.NewMessage(bus.T(configPrefix, name), v, true))
	}
	return nil
}
