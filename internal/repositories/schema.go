package repositories

import _ "embed"

// SchemaSQL creates every table this service reads or writes. It is
// idempotent and used by the integration suite and local bootstrap.
//
//go:embed schema.sql
var SchemaSQL string
