package classifier

import (
	"context"
	"hash/fnv"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agriclip/chat-service/internal/models"
)

// DiseaseProfile is one entry of the classification vocabulary served by
// the fake backend.
type DiseaseProfile struct {
	Name            string   `yaml:"name"`
	Confidence      int      `yaml:"confidence"`
	Severity        string   `yaml:"severity"`
	AffectedArea    int      `yaml:"affected_area"`
	Recommendations []string `yaml:"recommendations"`
}

// defaultDiseases mirrors the vocabulary of the real model service.
var defaultDiseases = []DiseaseProfile{
	{
		Name:         "Northern Corn Leaf Blight",
		Confidence:   87,
		Severity:     "medium",
		AffectedArea: 25,
		Recommendations: []string{
			"Apply fungicide containing azoxystrobin",
			"Improve field drainage",
			"Remove infected plant debris",
			"Consider resistant varieties for next season",
		},
	},
	{
		Name:         "Bacterial Leaf Spot",
		Confidence:   92,
		Severity:     "high",
		AffectedArea: 40,
		Recommendations: []string{
			"Apply copper-based bactericide",
			"Reduce overhead irrigation",
			"Increase plant spacing for better air circulation",
			"Remove and destroy infected leaves",
		},
	},
	{
		Name:         "Rust Disease",
		Confidence:   78,
		Severity:     "low",
		AffectedArea: 15,
		Recommendations: []string{
			"Apply preventive fungicide spray",
			"Monitor weather conditions",
			"Ensure proper plant nutrition",
			"Remove alternate host plants nearby",
		},
	},
	{
		Name:       "Healthy",
		Confidence: 95,
		Recommendations: []string{
			"Continue current management practices",
			"Monitor regularly for early disease signs",
			"Maintain proper nutrition and irrigation",
			"Keep field records for future reference",
		},
	},
}

// LoadDiseaseTable reads a classification vocabulary from a YAML file.
func LoadDiseaseTable(path string) ([]DiseaseProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []DiseaseProfile
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FakeBackend returns a deterministic result per upload id: the same
// upload always classifies to the same disease. Used in development mode
// and as the test double the orchestrator is exercised against.
type FakeBackend struct {
	diseases []DiseaseProfile
	delay    time.Duration
}

func NewFakeBackend(diseases []DiseaseProfile, delay time.Duration) *FakeBackend {
	if len(diseases) == 0 {
		diseases = defaultDiseases
	}
	return &FakeBackend{diseases: diseases, delay: delay}
}

func (f *FakeBackend) Classify(ctx context.Context, req ClassifyRequest) (*models.ClassificationResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h := fnv.New32a()
	h.Write([]byte(req.UploadID))
	d := f.diseases[int(h.Sum32())%len(f.diseases)]
	healthy := d.Name == "Healthy"
	return &models.ClassificationResult{
		DiseaseDetected: !healthy,
		DiseaseName:     d.Name,
		Confidence:      d.Confidence,
		Severity:        d.Severity,
		AffectedArea:    d.AffectedArea,
		Recommendations: d.Recommendations,
		Model:           "agriclip-v1",
		ProcessingTime:  f.delay.Seconds(),
	}, nil
}
