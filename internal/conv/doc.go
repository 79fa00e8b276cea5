// Package conv provides checked integer conversions for values decoded from
// or encoded to disk: manifest counts, patch offsets and sizes, and cell
// widths. Conversions that are safe by construction use plain casts.
package conv
