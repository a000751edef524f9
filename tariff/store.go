package tariff

import (
	"context"

	"github.com/xraph/telco/id"
)

type Store interface {
	Create(ctx context.Context, t *Tariff) error
	Get(ctx context.Context, tariffID id.TariffID) (*Tariff, error)
	List(ctx context.Context, opts ListOpts) ([]*Tariff, error)
	Update(ctx context.Context, t *Tariff) error
	Delete(ctx context.Context, tariffID id.TariffID) error
}

type ListOpts struct {
	ActiveOnly bool
	Kind       Kind
	Limit      int
	Offset     int
}
