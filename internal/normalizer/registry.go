package normalizer

import (
	"fmt"
	"strings"
)

// Registry holds all available normalizers and provides auto-detection.
type Registry struct {
	normalizers []Normalizer
}

// NewRegistry creates a registry with the metadata-document, XML record-set
// and tabular normalizers, tried in that order.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		normalizers: []Normalizer{
			NewMetadataNormalizer(),
			NewRecordSetNormalizer(),
			NewTabularNormalizer(opts),
		},
	}
}

// Register adds a new normalizer to the registry.
func (r *Registry) Register(n Normalizer) {
	r.normalizers = append(r.normalizers, n)
}

// Find detects the correct normalizer for an input.
func (r *Registry) Find(in *Input) (Normalizer, error) {
	for _, n := range r.normalizers {
		if n.CanNormalize(in) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoNormalizer, in.Source.Name)
}

// GetByName returns a normalizer by its name.
func (r *Registry) GetByName(name string) (Normalizer, error) {
	name = strings.ToLower(name)
	for _, n := range r.normalizers {
		if strings.ToLower(n.Name()) == name {
			return n, nil
		}
	}
	return nil, fmt.Errorf("normalizer not found: %s", name)
}

// Names lists registered normalizers in detection order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.normalizers))
	for i, n := range r.normalizers {
		out[i] = n.Name()
	}
	return out
}
