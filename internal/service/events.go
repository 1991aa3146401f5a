package service

import "virtualaddresshub/backend/internal/domain"

// PublisherGroup fans one event out to several sinks, letting webhook
// delivery and websocket push share the same hook.
type PublisherGroup []EventPublisher

func (g PublisherGroup) Publish(event domain.Event) {
	for _, p := range g {
		p.Publish(event)
	}
}
