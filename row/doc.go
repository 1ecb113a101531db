// Package row models backend result rows as a closed value variant so the
// rest of the module never handles raw untyped driver values. A row maps
// field names to values that are null, bool, number, string, list or object,
// and can be mapped onto a caller-supplied Go type.
package row
