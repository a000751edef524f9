package sim

import (
	"context"

	"github.com/xraph/telco/id"
)

type Store interface {
	Create(ctx context.Context, s *SIM) error
	Get(ctx context.Context, simID id.SIMID) (*SIM, error)
	GetByICCID(ctx context.Context, iccid string) (*SIM, error)
	GetByMSISDN(ctx context.Context, msisdn string) (*SIM, error)
	List(ctx context.Context, opts ListOpts) ([]*SIM, error)
	Update(ctx context.Context, s *SIM) error
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
