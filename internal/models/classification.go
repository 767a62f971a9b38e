package models

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ClassificationResult is the payload produced by the model backend for a
// completed job.
type ClassificationResult struct {
	DiseaseDetected bool     `json:"diseaseDetected"`
	DiseaseName     string   `json:"diseaseName"`
	Confidence      int      `json:"confidence"`
	Severity        string   `json:"severity,omitempty"`
	AffectedArea    int      `json:"affectedArea,omitempty"`
	Recommendations []string `json:"recommendations"`
	Model           string   `json:"model,omitempty"`
	ProcessingTime  float64  `json:"processingTime,omitempty"`
}
