package stack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmr-tortoise/dockstack/internal/compose"
	"github.com/mmr-tortoise/dockstack/internal/model"
)

// DefaultImportName is the stack name given to an imported compose
// document when the caller supplies none.
const DefaultImportName = "imported-stack"

// ExportYAML renders the registry as a compose document. The output is
// byte-identical for identical registry contents.
func (s *Stack) ExportYAML() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return compose.Marshal(s.definitions())
}

// ImportYAML builds a new, not deployed stack from a compose document.
// An empty name selects DefaultImportName. The daemon is not contacted.
func ImportYAML(data []byte, name string, rt Runtime, opts ...Option) (*Stack, error) {
	if name == "" {
		name = DefaultImportName
	}
	defs, err := compose.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	s, err := New(name, rt, opts...)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := s.Register(def); err != nil {
			return nil, model.WrapError(model.KindParse, "invalid compose document", err)
		}
	}
	return s, nil
}

// ImportFile reads and imports a compose file. Relative paths inside the
// document resolve against the file's directory unless an explicit
// WithBaseDir option is given. A missing or unreadable file is an io
// error; a malformed document is a parse error.
func ImportFile(path, name string, rt Runtime, opts ...Option) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapError(model.KindIO, fmt.Sprintf("failed to read compose file %q", path), err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, model.WrapError(model.KindIO, fmt.Sprintf("failed to resolve directory of %q", path), err)
	}
	opts = append([]Option{WithBaseDir(dir)}, opts...)
	return ImportYAML(data, name, rt, opts...)
}
