package types

import "errors"

// Schema loading errors.
var (
	ErrMalformedSchema = errors.New("schema document has no properties")
	ErrUnknownType     = errors.New("unknown property type")
	ErrDuplicateField  = errors.New("duplicate property name")
)

// Registry errors.
var (
	ErrDuplicateVersion     = errors.New("schema version already exists")
	ErrVersionNotIncreasing = errors.New("schema version must exceed the newest version")
	ErrUnknownSchema        = errors.New("unknown schema")
)

// DDL execution errors.
var ErrDDLExecFailed = errors.New("ddl execution failed")

// DML generation errors.
var (
	ErrNoPk              = errors.New("schema has no primary key")
	ErrNoUpdatableFields = errors.New("payload has no updatable fields")
	ErrEmptyPayload      = errors.New("payload array is empty")
	ErrUnknownColumn     = errors.New("column not declared in schema")
)

// Write pipeline errors.
var (
	ErrMissingPk        = errors.New("row is missing a valid primary key")
	ErrBindTypeMismatch = errors.New("bound value does not match declared type")
	ErrBeginFailed      = errors.New("begin transaction failed")
	ErrCommitFailed     = errors.New("commit failed")
	ErrPrepareFailed    = errors.New("prepare failed")
)

// Pool errors.
var (
	ErrAcquireTimeout = errors.New("pool acquire timed out")
	ErrPoolShutdown   = errors.New("pool is shut down")
)

// Id generation errors.
var (
	ErrClockRegress   = errors.New("clock moved backwards")
	ErrIDTypeMismatch = errors.New("id kind does not match primary key type")
)

// Configuration errors.
var (
	ErrDialectUnknown       = errors.New("unknown dialect")
	ErrDSNEmpty             = errors.New("dsn must not be empty")
	ErrPoolSizeInvalid      = errors.New("pool size must be positive")
	ErrWorkerIDOutOfRange   = errors.New("snowflake worker id must be between 0 and 31")
	ErrDatacenterOutOfRange = errors.New("snowflake datacenter id must be between 0 and 31")
)
