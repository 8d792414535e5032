package lts

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalnine/matbench/internal/models"
	"github.com/signalnine/matbench/internal/result"
)

// Schema is a registered LTS payload schema.
type Schema struct {
	Name    string
	Version string
	// Project builds the payload of one parsed run.
	Project func(r *result.Results, settings result.ImportSettings, mustValidate bool) (*models.Payload, error)
}

var (
	schemasMu sync.RWMutex
	schemas   = map[string]Schema{}
)

func init() {
	if err := RegisterSchema(Schema{
		Name:    models.SchemaName,
		Version: models.SchemaVersion,
		Project: Project,
	}); err != nil {
		panic(err)
	}
}

// RegisterSchema makes s available to LookupSchema. Names are unique.
func RegisterSchema(s Schema) error {
	if s.Name == "" || s.Project == nil {
		return fmt.Errorf("registering schema: name and projector are required")
	}
	schemasMu.Lock()
	defer schemasMu.Unlock()
	if _, dup := schemas[s.Name]; dup {
		return fmt.Errorf("registering schema: %s already registered", s.Name)
	}
	schemas[s.Name] = s
	return nil
}

func LookupSchema(name string) (Schema, error) {
	schemasMu.RLock()
	defer schemasMu.RUnlock()
	s, ok := schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("unknown LTS schema %q", name)
	}
	return s, nil
}

// Schemas lists the registered schema names, sorted.
func Schemas() []string {
	schemasMu.RLock()
	defer schemasMu.RUnlock()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
