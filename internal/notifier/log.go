package notifier

import (
	"context"
	"log"

	"github.com/iliyamo/two-step-auth/internal/model"
)

// Log writes code deliveries to the process log instead of a broker.  Meant
// for local development and tests; never use it where real users would need
// to receive their codes.
type Log struct{}

func NewLog() *Log { return &Log{} }

// SendCode logs the delivery and always succeeds.
func (n *Log) SendCode(_ context.Context, account model.Account, code string) error {
	log.Printf("notifier: code %s for account %d (%s)", code, account.ID, account.Email)
	return nil
}
