// Package bus carries item events between the repositories and the
// notification worker, in process over channels or across processes
// over NATS.
package bus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/opensource-finance/heron/internal/domain"
)

var (
	errScopeRequired = errors.New("scope is required")
	errClosed        = errors.New("bus is closed")
)

// workspaceNamespace seeds ScopeFor so every process derives the same key.
var workspaceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("heron/workspace"))

// New creates an event bus from configuration: "channel" or "nats".
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// ScopeFor returns the stable bus scope of a workspace URL. Case and a
// trailing slash do not change the scope.
func ScopeFor(workspaceURL string) string {
	key := strings.ToLower(strings.TrimRight(strings.TrimSpace(workspaceURL), "/"))
	return uuid.NewSHA1(workspaceNamespace, []byte(key)).String()
}

func newMessage(scope, topic string, payload []byte, now int64) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		Scope:     scope,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: now,
	}
}
