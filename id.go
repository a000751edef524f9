package telco

import "github.com/xraph/telco/id"

// ID is the primary identifier type for all Telco entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
