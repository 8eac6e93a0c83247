// Package metrics provides constants used across metric definitions.
package metrics

// Pipeline stage names used as the "stage" label.
const (
	// StageEncode is image normalization.
	StageEncode = "encode"
	// StageIdentify is the vision model call.
	StageIdentify = "identify"
	// StageRegistry is the two-step regional registry lookup.
	StageRegistry = "registry"
	// StageVerify is the registry match.
	StageVerify = "verify"
	// StageUpload is the collection image upload.
	StageUpload = "upload"
	// StagePersist is the collection record write.
	StagePersist = "persist"
	// StageRun covers a whole pipeline run.
	StageRun = "run"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Run result label values.
const (
	ResultVerified  = "verified"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart1KB is the starting bucket for 1KB histograms.
	BucketStart1KB = 1024.0

	BucketFactor2 = 2

	BucketCount10 = 10
	BucketCount12 = 12
	BucketCount15 = 15
)
