package domain

import "errors"

// Adapter errors
var (
	// ErrNotFound indicates the requested entry does not exist
	ErrNotFound = errors.New("entry not found")

	// ErrPermissionDenied indicates insufficient permissions or a path escaping the root
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")
)

// Comparison errors
var (
	// ErrDirectoryNotFound indicates a comparison root is missing or not a directory
	ErrDirectoryNotFound = errors.New("directory not found")

	// ErrUnsupportedAlgorithm indicates an unknown hash algorithm was requested
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrInvalidPattern indicates an ignore pattern could not be compiled
	ErrInvalidPattern = errors.New("invalid ignore pattern")

	// ErrHashMismatchShape indicates the two sides of a file produced digest sets
	// of different shape. This is an engine defect, never a verdict.
	ErrHashMismatchShape = errors.New("digest sets differ in shape")
)

// Baseline errors
var (
	// ErrUnsupportedManifestVersion indicates a manifest written by an incompatible version
	ErrUnsupportedManifestVersion = errors.New("unsupported baseline manifest version")

	// ErrBaselineMissingHash indicates a baseline entry lacks a digest that was explicitly requested
	ErrBaselineMissingHash = errors.New("baseline missing hash")

	// ErrIncompatibleBaseline indicates the run settings differ from the capture settings
	ErrIncompatibleBaseline = errors.New("incompatible baseline settings")

	// ErrInvalidManifest indicates a manifest without a usable root entry
	ErrInvalidManifest = errors.New("invalid baseline manifest")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)
