// Package loader reads and writes patchwork settings files.
//
// Settings are stored as a flat table of scalar values. TOML is the primary
// format; files with a .yaml or .yml extension are read and written as YAML.
// Nested tables are flattened to dot-separated keys on load.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a settings file encoding.
type Format int

const (
	// FormatTOML is the default format.
	FormatTOML Format = iota
	// FormatYAML is selected by the .yaml and .yml extensions.
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatFor returns the format implied by path's extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Codec converts between a settings map and its file encoding.
type Codec interface {
	Decode(data []byte) (map[string]any, error)
	Encode(settings map[string]any) ([]byte, error)
}

// CodecFor returns the codec for format.
func CodecFor(format Format) Codec {
	if format == FormatYAML {
		return yamlCodec{}
	}
	return tomlCodec{}
}

// FileSystem is an abstraction for read-only file system operations.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// FileLoader reads and writes one settings file.
type FileLoader struct {
	fs    FileSystem
	path  string
	codec Codec
}

// New creates a loader for path using the OS file system.
func New(path string) *FileLoader {
	return NewWithFS(OSFS{}, path)
}

// NewWithFS creates a loader that reads through fsys.
func NewWithFS(fsys FileSystem, path string) *FileLoader {
	return &FileLoader{
		fs:    fsys,
		path:  path,
		codec: CodecFor(FormatFor(path)),
	}
}

// Path returns the settings file path.
func (l *FileLoader) Path() string {
	return l.path
}

// Load reads the settings file.
// A missing file yields nil, nil.
func (l *FileLoader) Load() (map[string]any, error) {
	data, err := l.fs.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", l.path, err)
	}
	return l.parse(l.path, data)
}

// LoadFromReader reads settings from r using the loader's format.
func (l *FileLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return l.parse("<reader>", data)
}

func (l *FileLoader) parse(source string, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	settings, err := l.codec.Decode(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = source
			return nil, perr
		}
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return Flatten(settings), nil
}

// Save writes settings to the file atomically: the data goes to a temporary
// file in the same directory which is then renamed over the target.
func (l *FileLoader) Save(settings map[string]any) error {
	data, err := l.codec.Encode(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// ParseError represents an error while parsing a settings file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Flatten collapses nested tables into dot-separated keys.
func Flatten(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	flattenInto(dst, "", src)
	return dst
}

func flattenInto(dst map[string]any, prefix string, src map[string]any) {
	for key, val := range src {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenInto(dst, key, nested)
			continue
		}
		dst[key] = val
	}
}

// Clone returns a shallow copy of a flat settings map.
func Clone(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
