// Package types defines the schema model, dialect and operation enums,
// configuration, and standard errors for the Strata storage engine.
package types
