// Package io provides input/output utilities for dataset ingestion and
// artifact writing.
package io

import (
	"github.com/hed1ad/dispatchml/pkg/baseline"
	"github.com/hed1ad/dispatchml/pkg/dataset"
)

// Reader is the interface for reading event datasets from various sources.
// Column-to-field resolution happens here, once; downstream components
// only see the typed schema.
type Reader interface {
	// Read returns the complete dataset.
	Read() (*dataset.Dataset, error)

	// Close releases resources.
	Close() error
}

// FeatureWriter writes the enriched feature table artifact.
type FeatureWriter interface {
	// WriteFeatures outputs every event with its derived columns.
	WriteFeatures(ds *dataset.Dataset, name string) error

	// WriteSample outputs a bounded sample of the feature table.
	WriteSample(ds *dataset.Dataset, name string, n int) error
}

// FlaggedWriter writes the operational flagged-anomalies artifact.
type FlaggedWriter interface {
	// WriteFlagged outputs the scored rows in the order given.
	WriteFlagged(ds *dataset.Dataset, name string, rows []baseline.Flagged) error
}
