// Package model defines the data types shared across the harvesting pipeline.
//
// The pipeline moves three kinds of values between components:
//
//   - Query: an immutable description of one harvest request (search term,
//     exclusion terms, result cap, page size).
//   - Record: a collection object as returned by a provider, either in its
//     candidate form (from a search page) or its detail form (after a
//     per-object fetch). The raw provider payload is carried opaquely and is
//     what ends up in the metadata file on disk.
//   - Asset: a downloadable image URL plus its rank hints.
//
// Records are transient; only the raw payload of a detail record is ever
// persisted.
package model
