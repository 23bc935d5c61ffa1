// Package emailsvc holds the core.EmailService backends.
package emailsvc

import (
	"log"

	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core"
)

var errUnknownBackend = errors.New("unknown email backend")

// Waiter is implemented by the backends that send in the background.
type Waiter interface {
	Wait()
}

// Wait blocks until svc has no message in flight, if it sends in the background.
func Wait(svc core.EmailService) {
	if w, ok := svc.(Waiter); ok {
		w.Wait()
	}
}

type discardService struct{}

func (discardService) SendMessages(...*core.EmailMessage) {}

// New returns the backend named by conf.Email.Backend. Console output goes to std.
func New(std *log.Logger, logger core.Logger, conf *core.Config) (core.EmailService, error) {
	switch conf.Email.Backend {
	case "console", "":
		return NewConsoleService(std, logger, conf), nil
	case "sendgrid":
		if conf.Email.SendgridApiKey == "" {
			return nil, errors.New("sendgrid backend needs an API key")
		}
		return NewSendgridService(logger, conf), nil
	case "none":
		return discardService{}, nil
	default:
		return nil, errors.Wrapf(errUnknownBackend, "%q", conf.Email.Backend)
	}
}
