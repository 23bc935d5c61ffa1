// Package dummymail keeps sent messages in memory. For tests and in-memory setups.
package dummymail

import (
	"sync"

	"github.com/trezcool/plagiat/core"
)

type Service struct {
	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*Service)(nil)

func NewService() *Service {
	return &Service{sent: make([]core.EmailMessage, 0)}
}

// SendMessages records sendable messages synchronously.
func (svc *Service) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, msg := range messages {
		if msg.Sendable() {
			svc.sent = append(svc.sent, *msg)
		}
	}
}

// SentMessages returns a copy of the recorded messages.
func (svc *Service) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage{}, svc.sent...)
}

func (svc *Service) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = make([]core.EmailMessage, 0)
}
