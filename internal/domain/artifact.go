package domain

import "errors"

// ErrArtifactNotFound is returned by artifact stores when no blob is stored
// under the requested name.
var ErrArtifactNotFound = errors.New("artifact not found")
