package catalog

import "errors"

// ErrAlreadyExists is the sentinel a Store implementation wraps (or
// returns bare) when CreateJob is called with a job id that already
// exists. Stage 2 of the admission pipeline checks for it with errors.Is
// to distinguish a Conflict from any other store failure.
var ErrAlreadyExists = errors.New("job id already exists")

// ErrNotFound is returned by the catalog lookups (GetCluster, GetCommand,
// GetApplication) when the id has no backing entity. After a successful
// resolve this indicates a torn catalog and is always a ServerError.
var ErrNotFound = errors.New("catalog entity not found")
