package pipeline

import (
	"context"

	"github.com/example/anemiascan/internal/scoring"
)

// Presentation receives pipeline progress and outcomes. The core has no
// knowledge of any rendering surface behind this boundary.
type Presentation interface {
	ShowPreview(dataURL string)
	ShowResult(result scoring.Result)
	ShowError(kind ErrorKind, message string)
	SetModelReady(ready bool)
}

// Store persists a completed screening. The pipeline's only obligation is to
// call it once a result exists; the storage medium is the collaborator's
// concern.
type Store interface {
	SaveSubmission(ctx context.Context, userID, imageRef string, result scoring.Result) (string, error)
}
