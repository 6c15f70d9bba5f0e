package timeline

import "errors"

var (
	// ErrInvalidTimestamp is returned when a packet or query timestamp cannot be
	// coerced to a finite number.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrUnsupportedExportFormat is returned by ExportSegment for unknown formats.
	ErrUnsupportedExportFormat = errors.New("unsupported export format")

	// ErrInvalidAnomalyConfig is returned by SetAnomalyConfig for out-of-range settings.
	ErrInvalidAnomalyConfig = errors.New("invalid anomaly config")
)
