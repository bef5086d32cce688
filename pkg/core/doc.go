// Package core defines the shared language of the lineagekit system.
//
// This package contains:
//   - Graph entities (DatasetNode, ColumnNode, TransformNode, the four edge kinds)
//   - Column statistics and the tabular Frame handed to the ingestion API
//   - Change records, severities and impact hits
//   - Service interfaces (Store and its read-only views)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
