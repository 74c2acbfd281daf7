package tenant

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// DefaultAdmin is the reserved administrative tenant. It owns no pipeline.
const DefaultAdmin = "default"

// Registry is an immutable set of known tenants.
type Registry struct {
	admin   string
	tenants []string
}

// NewRegistry keeps the first occurrence of each name and drops blanks.
func NewRegistry(admin string, names ...string) *Registry {
	if admin == "" {
		admin = DefaultAdmin
	}
	seen := make(map[string]struct{}, len(names))
	tenants := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tenants = append(tenants, name)
	}
	return &Registry{admin: admin, tenants: tenants}
}

func (r *Registry) Admin() string {
	return r.admin
}

// All returns every tenant, including the administrative one when configured.
func (r *Registry) All() []string {
	return slices.Clone(r.tenants)
}

// Eligible returns the tenants a pipeline may run for.
func (r *Registry) Eligible() []string {
	out := make([]string, 0, len(r.tenants))
	for _, name := range r.tenants {
		if name != r.admin {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) Has(name string) bool {
	return slices.Contains(r.tenants, name)
}

func (r *Registry) IsAdmin(name string) bool {
	return name == r.admin
}

// Validate returns an error unless name is a known, non-administrative tenant.
func (r *Registry) Validate(name string) error {
	if !r.Has(name) {
		return fmt.Errorf("unknown tenant %q", name)
	}
	if r.IsAdmin(name) {
		return fmt.Errorf("tenant %q is reserved", name)
	}
	return nil
}

// Discover lists the subdirectories of dir as tenant names. A missing
// directory yields no tenants.
func Discover(fs afero.Fs, dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tenant directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Load merges configured tenants with the ones discovered under dir.
func Load(fs afero.Fs, admin string, configured []string, dir string) (*Registry, error) {
	discovered, err := Discover(fs, dir)
	if err != nil {
		return nil, err
	}
	return NewRegistry(admin, append(slices.Clone(configured), discovered...)...), nil
}
