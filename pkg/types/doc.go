// Package types defines the schema model of the device catalog: field
// definitions and their typed constraints, category schema versions,
// migrations and their operations, compatibility rules and verdicts,
// devices, templates, impact reports, the persistence contract, and the
// error kinds shared by every component.
package types
