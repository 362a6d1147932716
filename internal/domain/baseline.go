package domain

import "time"

// ManifestVersion is the schema version written into every manifest.
// Manifests with any other version are rejected on load.
const ManifestVersion = 1

// BaselineManifest is a captured snapshot of a tree together with the
// settings that were active at capture time.
type BaselineManifest struct {
	Version               int             `json:"version" msgpack:"version"`
	SourcePath            string          `json:"source_path" msgpack:"source_path"`
	CreatedAt             time.Time       `json:"created_at" msgpack:"created_at"`
	IgnorePatterns        []string        `json:"ignore_patterns,omitempty" msgpack:"ignore_patterns,omitempty"`
	CaseSensitive         bool            `json:"case_sensitive" msgpack:"case_sensitive"`
	ModifiedTimeTolerance time.Duration   `json:"modified_time_tolerance" msgpack:"modified_time_tolerance"`
	Algorithms            []HashAlgorithm `json:"algorithms,omitempty" msgpack:"algorithms,omitempty"`
	Root                  *BaselineEntry  `json:"root" msgpack:"root"`
}

// BaselineEntry is a captured file or directory. Directories carry Children,
// files carry Size, ModTime and Hashes.
type BaselineEntry struct {
	Name         string                   `json:"name" msgpack:"name"`
	RelativePath string                   `json:"path" msgpack:"path"`
	Type         NodeType                 `json:"type" msgpack:"type"`
	Size         *int64                   `json:"size,omitempty" msgpack:"size,omitempty"`
	ModTime      *time.Time               `json:"mod_time,omitempty" msgpack:"mod_time,omitempty"`
	Hashes       map[HashAlgorithm]string `json:"hashes,omitempty" msgpack:"hashes,omitempty"`
	Children     []*BaselineEntry         `json:"children,omitempty" msgpack:"children,omitempty"`
}

// IsDir returns true for directory entries
func (e *BaselineEntry) IsDir() bool {
	return e.Type == NodeTypeDirectory
}

// BaselineMetadata records which manifest a comparison result was produced from
type BaselineMetadata struct {
	ManifestPath string          `json:"manifest_path"`
	SourcePath   string          `json:"source_path"`
	CreatedAt    time.Time       `json:"created_at"`
	Algorithms   []HashAlgorithm `json:"algorithms,omitempty"`
}

// CountFiles returns the number of file entries under e, e included.
func (e *BaselineEntry) CountFiles() int {
	if e == nil {
		return 0
	}
	if !e.IsDir() {
		return 1
	}
	n := 0
	for _, c := range e.Children {
		n += c.CountFiles()
	}
	return n
}
