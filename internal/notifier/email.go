package notifier

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// Email sends mail through shoutrrr smtp:// URLs. The recipient is passed
// per message, overriding the URL's toAddresses.
type Email struct {
	sender *router.ServiceRouter
}

func NewEmail(urls []string, timeout time.Duration) (*Email, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &Email{sender: sender}, nil
}

func (e *Email) Send(to, subject, body string) error {
	if e == nil {
		return errors.New("email is disabled")
	}
	params := stypes.Params{}
	params.SetTitle(subject)
	params["toaddresses"] = to

	for _, err := range e.sender.Send(body, &params) {
		if err != nil {
			return err
		}
	}
	return nil
}
