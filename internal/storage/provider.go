// Package storage defines the sandboxed content-store abstraction.
package storage

import "time"

// Provider is the interface for content operations. All paths are relative
// to the sandbox root; implementations must reject paths that escape it.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Remove deletes the file at path.
	Remove(path string) error
	// ListRecursive returns the relative path of every file under the root.
	ListRecursive() ([]string, error)
	// Mtime returns the modification time of the file at path.
	Mtime(path string) (time.Time, error)
	// SetMtime sets the modification time of the file at path.
	SetMtime(path string, mtime time.Time) error
	// Exists reports whether a file exists at path.
	Exists(path string) bool
}
