package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/inferloop/casesynth/pkg/models"
)

// LoadRequest identifies the source data for a run.
type LoadRequest struct {
	DataDir      string
	Jurisdiction string
	Codes        []int
}

// ModelLoader turns source files into the model consumed by the synthesis engine.
type ModelLoader interface {
	// InputFiles returns the files that exist for the request, in code order
	InputFiles(req LoadRequest) ([]string, error)

	// Load reads the input files and builds the model
	Load(ctx context.Context, req LoadRequest) (*models.ModelData, error)
}

// ResultExporter writes a synthesis result in one output format.
type ResultExporter interface {
	// Format returns the file extension handled, including the dot
	Format() string

	// Export writes the output to w
	Export(ctx context.Context, w io.Writer, output *models.SynthesisOutput) error
}

// ModelCache stores loaded models keyed by a fingerprint of their input files.
type ModelCache interface {
	// Get returns the cached model, or nil without error on a miss
	Get(ctx context.Context, key string) (*models.ModelData, error)

	// Put stores the model with the given time to live
	Put(ctx context.Context, key string, data *models.ModelData, ttl time.Duration) error

	// Close releases the underlying connection
	Close() error
}

// ObjectUploader publishes a finished output file.
type ObjectUploader interface {
	// Upload copies the local file to the remote store and returns its location
	Upload(ctx context.Context, localPath string) (string, error)
}
