// Package result decodes backend rows into scored records and scored ids.
package result
