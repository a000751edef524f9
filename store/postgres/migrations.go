package postgres

// migration is one versioned schema step, recorded in
// telco_schema_migrations so Migrate is idempotent.
type migration struct {
	Version string
	Name    string
	Up      string
}

var migrations = []migration{
	{
		Version: "20250101000001",
		Name:    "create_telco_tariffs",
		Up: `
CREATE TABLE IF NOT EXISTS telco_tariffs (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    kind              TEXT NOT NULL DEFAULT 'prepaid',
    priority          INT NOT NULL DEFAULT 0,
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    currency          TEXT NOT NULL DEFAULT 'kgs',
    monthly_fee       BIGINT NOT NULL DEFAULT 0,
    minutes_included  BIGINT NOT NULL DEFAULT 0,
    sms_included      BIGINT NOT NULL DEFAULT 0,
    data_gb_included  DOUBLE PRECISION NOT NULL DEFAULT 0,
    minute_overage    BIGINT NOT NULL DEFAULT 0,
    sms_overage       BIGINT NOT NULL DEFAULT 0,
    data_gb_overage   BIGINT NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telco_tariffs_active ON telco_tariffs (is_active, kind);
`,
	},
	{
		Version: "20250101000002",
		Name:    "create_telco_sims",
		Up: `
CREATE TABLE IF NOT EXISTS telco_sims (
    id             TEXT PRIMARY KEY,
    iccid          TEXT NOT NULL,
    imsi           TEXT NOT NULL,
    msisdn         TEXT NOT NULL,
    puk            TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'free',
    contract_id    TEXT,
    activated_at   TIMESTAMPTZ,
    deactivated_at TIMESTAMPTZ,
    version        BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_telco_sims_iccid ON telco_sims (iccid);
CREATE UNIQUE INDEX IF NOT EXISTS idx_telco_sims_imsi ON telco_sims (imsi);
CREATE UNIQUE INDEX IF NOT EXISTS idx_telco_sims_msisdn ON telco_sims (msisdn);
CREATE INDEX IF NOT EXISTS idx_telco_sims_status ON telco_sims (status);
`,
	},
	{
		Version: "20250101000003",
		Name:    "create_telco_contracts",
		Up: `
CREATE TABLE IF NOT EXISTS telco_contracts (
    id                TEXT PRIMARY KEY,
    number            TEXT NOT NULL,
    customer_id       TEXT NOT NULL,
    tariff_id         TEXT NOT NULL,
    sim_id            TEXT,
    status            TEXT NOT NULL DEFAULT 'draft',
    currency          TEXT NOT NULL DEFAULT 'kgs',
    balance           BIGINT NOT NULL DEFAULT 0,
    total_cost        BIGINT NOT NULL DEFAULT 0,
    signed_date       TIMESTAMPTZ NOT NULL,
    activation_date   TIMESTAMPTZ,
    termination_date  TIMESTAMPTZ,
    next_billing_date TIMESTAMPTZ,
    notes             TEXT NOT NULL DEFAULT '',
    version           BIGINT NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_telco_contracts_number ON telco_contracts (number);
CREATE INDEX IF NOT EXISTS idx_telco_contracts_customer ON telco_contracts (customer_id);
CREATE INDEX IF NOT EXISTS idx_telco_contracts_billing ON telco_contracts (status, next_billing_date);
CREATE INDEX IF NOT EXISTS idx_telco_contracts_balance ON telco_contracts (status, balance);
`,
	},
	{
		Version: "20250101000004",
		Name:    "create_telco_payments",
		Up: `
CREATE TABLE IF NOT EXISTS telco_payments (
    id             TEXT PRIMARY KEY,
    contract_id    TEXT NOT NULL,
    type           TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    method         TEXT NOT NULL,
    currency       TEXT NOT NULL DEFAULT 'kgs',
    amount         BIGINT NOT NULL DEFAULT 0,
    transaction_id TEXT NOT NULL DEFAULT '',
    description    TEXT NOT NULL DEFAULT '',
    refund_of      TEXT,
    billing_period TEXT NOT NULL DEFAULT '',
    balance_after  BIGINT,
    processed_at   TIMESTAMPTZ,
    processed_by   TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telco_payments_contract ON telco_payments (contract_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_telco_payments_txid ON telco_payments (transaction_id) WHERE transaction_id != '';
CREATE INDEX IF NOT EXISTS idx_telco_payments_unsettled ON telco_payments (status, created_at);
CREATE INDEX IF NOT EXISTS idx_telco_payments_period ON telco_payments (contract_id, billing_period) WHERE billing_period != '';
`,
	},
	{
		Version: "20250101000005",
		Name:    "create_telco_traffic_metrics",
		Up: `
CREATE TABLE IF NOT EXISTS telco_traffic_metrics (
    id          TEXT PRIMARY KEY,
    calls       BIGINT NOT NULL DEFAULT 0,
    sms         BIGINT NOT NULL DEFAULT 0,
    data_mb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    topups      BIGINT NOT NULL DEFAULT 0,
    currency    TEXT NOT NULL DEFAULT 'kgs',
    charges     BIGINT NOT NULL DEFAULT 0,
    source      TEXT NOT NULL DEFAULT 'emulator',
    recorded_at TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telco_traffic_recorded ON telco_traffic_metrics (recorded_at);
CREATE INDEX IF NOT EXISTS idx_telco_traffic_source ON telco_traffic_metrics (source, recorded_at);
`,
	},
}
