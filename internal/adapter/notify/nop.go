package notify

import (
	"context"

	"github.com/semmidev/sitekeep/internal/domain"
)

type Nop struct{}

func (Nop) Notify(context.Context, domain.Event) error {
	return nil
}
