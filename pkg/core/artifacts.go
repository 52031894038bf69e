package core

// Content types for captured artifacts.
const (
	ContentTypePNG = "image/png"
	ContentTypeXML = "application/xml"
)

// Attachment is one captured artifact.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Path        string `json:"path"`
}

// ArtifactConfig controls what gets captured and when.
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure"`
	CaptureOnSuccess bool `yaml:"captureOnSuccess"`

	Screenshot bool `yaml:"screenshot"`
	Hierarchy  bool `yaml:"hierarchy"`
}

// DefaultArtifactConfig captures screenshot and hierarchy on failure only.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		Screenshot:       true,
		Hierarchy:        true,
	}
}

// ShouldCapture returns true if artifacts should be captured for the
// given terminal status.
func (c ArtifactConfig) ShouldCapture(status RunStatus) bool {
	switch status {
	case StatusFailed, StatusErrored:
		return c.CaptureOnFailure
	case StatusPassed:
		return c.CaptureOnSuccess
	default:
		return false
	}
}
