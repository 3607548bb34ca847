// Package libreary implements a distributed digital-object archive: a
// canonical copy of each ingested object plus a configurable number of
// redundant copies spread across heterogeneous storage backends, with
// background integrity checking and repair.
package libreary
