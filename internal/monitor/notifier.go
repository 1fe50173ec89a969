package monitor

import (
	"context"
	"errors"

	"github.com/rewired-gh/coinpulse/internal/models"
)

// Notifier delivers fired alerts somewhere outside the process.
type Notifier interface {
	Notify(ctx context.Context, triggers []models.Trigger) error
}

// Notifiers fans out to every notifier and reports all failures together.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, triggers []models.Trigger) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, triggers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
