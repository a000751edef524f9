package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/telco/id"
	"github.com/xraph/telco/types"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func freeSIM() *SIM {
	return &SIM{
		ID:     id.NewSIMID(),
		ICCID:  "8999600000000000001",
		IMSI:   "437010000000001",
		MSISDN: "+996700123456",
		PUK:    "12345678",
		Status: StatusFree,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SIM)
		field  string
	}{
		{"valid", nil, ""},
		{"valid 20 digit iccid", func(s *SIM) { s.ICCID = "89996000000000000012" }, ""},
		{"valid without puk", func(s *SIM) { s.PUK = "" }, ""},
		{"iccid too short", func(s *SIM) { s.ICCID = "899960000000001" }, "iccid"},
		{"iccid non-numeric", func(s *SIM) { s.ICCID = "89996000000000000AB" }, "iccid"},
		{"imsi too short", func(s *SIM) { s.IMSI = "43701000001" }, "imsi"},
		{"imsi too long", func(s *SIM) { s.IMSI = "4370100000000012" }, "imsi"},
		{"msisdn wrong country", func(s *SIM) { s.MSISDN = "+7700123456" }, "msisdn"},
		{"msisdn missing plus", func(s *SIM) { s.MSISDN = "996700123456" }, "msisdn"},
		{"msisdn too long", func(s *SIM) { s.MSISDN = "+9967001234567" }, "msisdn"},
		{"puk too short", func(s *SIM) { s.PUK = "1234" }, "puk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := freeSIM()
			if tt.modify != nil {
				tt.modify(s)
			}
			err := s.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var verr types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestBindUnbind(t *testing.T) {
	s := freeSIM()
	ctr := id.NewContractID()

	if err := s.Bind(ctr, now); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if s.Status != StatusActive {
		t.Errorf("expected active, got %s", s.Status)
	}
	if s.ContractID != ctr {
		t.Errorf("expected contract %s, got %s", ctr, s.ContractID)
	}
	if s.ActivatedAt == nil || !s.ActivatedAt.Equal(now) {
		t.Errorf("expected activated_at %v, got %v", now, s.ActivatedAt)
	}

	// A bound card cannot be bound again.
	if err := s.Bind(id.NewContractID(), now); !errors.Is(err, ErrNotFree) {
		t.Errorf("expected ErrNotFree, got %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.Unbind(later); err != nil {
		t.Fatalf("Unbind failed: %v", err)
	}
	if s.Status != StatusFree {
		t.Errorf("expected free, got %s", s.Status)
	}
	if !s.ContractID.IsNil() {
		t.Errorf("expected nil contract, got %s", s.ContractID)
	}
	if s.DeactivatedAt == nil || !s.DeactivatedAt.Equal(later) {
		t.Errorf("expected deactivated_at %v, got %v", later, s.DeactivatedAt)
	}

	// Rebindable after release.
	if err := s.Bind(id.NewContractID(), later); err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	if s.DeactivatedAt != nil {
		t.Error("expected deactivated_at cleared on rebind")
	}
}

func TestUnbindFree(t *testing.T) {
	s := freeSIM()
	if err := s.Unbind(now); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound, got %v", err)
	}
}

func TestSuspendResume(t *testing.T) {
	s := freeSIM()
	if err := s.Suspend(now); !errors.Is(err, ErrNotActive) {
		t.Errorf("suspend of free card: expected ErrNotActive, got %v", err)
	}

	if err := s.Bind(id.NewContractID(), now); err != nil {
		t.Fatal(err)
	}
	if err := s.Suspend(now); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if s.Status != StatusSuspended {
		t.Errorf("expected suspended, got %s", s.Status)
	}
	if err := s.Suspend(now); !errors.Is(err, ErrNotActive) {
		t.Errorf("double suspend: expected ErrNotActive, got %v", err)
	}

	if err := s.Resume(now); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if s.Status != StatusActive {
		t.Errorf("expected active, got %s", s.Status)
	}
	if err := s.Resume(now); !errors.Is(err, ErrNotSuspended) {
		t.Errorf("double resume: expected ErrNotSuspended, got %v", err)
	}
}

func TestBlockUnblock(t *testing.T) {
	t.Run("blocked while bound returns to active", func(t *testing.T) {
		s := freeSIM()
		if err := s.Bind(id.NewContractID(), now); err != nil {
			t.Fatal(err)
		}
		if err := s.Block(now); err != nil {
			t.Fatalf("Block failed: %v", err)
		}
		if s.Status != StatusBlocked {
			t.Errorf("expected blocked, got %s", s.Status)
		}
		if err := s.Block(now); !errors.Is(err, ErrBlocked) {
			t.Errorf("double block: expected ErrBlocked, got %v", err)
		}
		if err := s.Unblock(now); err != nil {
			t.Fatalf("Unblock failed: %v", err)
		}
		if s.Status != StatusActive {
			t.Errorf("expected active after unblock of bound card, got %s", s.Status)
		}
	})

	t.Run("free card cannot be blocked", func(t *testing.T) {
		s := freeSIM()
		if err := s.Block(now); err == nil {
			t.Error("expected error blocking a free card")
		}
	})

	t.Run("unblock of unblocked card fails", func(t *testing.T) {
		s := freeSIM()
		if err := s.Unblock(now); !errors.Is(err, ErrNotBlocked) {
			t.Errorf("expected ErrNotBlocked, got %v", err)
		}
	})
}

func TestClose(t *testing.T) {
	s := freeSIM()
	if err := s.Close(now); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Status != StatusClosed {
		t.Errorf("expected closed, got %s", s.Status)
	}

	// Closed is terminal.
	if err := s.Bind(id.NewContractID(), now); !errors.Is(err, ErrNotFree) {
		t.Errorf("bind of closed card: expected ErrNotFree, got %v", err)
	}
	if err := s.Close(now); !errors.Is(err, ErrNotFree) {
		t.Errorf("double close: expected ErrNotFree, got %v", err)
	}
}
