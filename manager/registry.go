package manager

import (
	"fmt"
	"sort"
	"subuk/gamemango/config"
)

// Registry maps server names to managers. It is filled at startup and read
// only afterwards.
type Registry struct {
	managers map[string]Manager
	bindings map[string]string
}

func newRegistry() *Registry {
	return &Registry{
		managers: map[string]Manager{},
		bindings: map[string]string{},
	}
}

// NewRegistry creates a manager for every configured server.
func NewRegistry(factory *Factory, servers []config.ServerConfig) (*Registry, error) {
	registry := newRegistry()
	for index := range servers {
		manager, err := factory.Create(&servers[index])
		if err != nil {
			registry.Close()
			return nil, err
		}
		if err := registry.Add(manager); err != nil {
			manager.Close()
			registry.Close()
			return nil, err
		}
	}
	return registry, nil
}

// NewRegistryOf wraps already constructed managers.
func NewRegistryOf(managers ...Manager) (*Registry, error) {
	registry := newRegistry()
	for _, manager := range managers {
		if err := registry.Add(manager); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (registry *Registry) Add(manager Manager) error {
	name := manager.Name()
	if _, exists := registry.managers[name]; exists {
		return fmt.Errorf("duplicate server '%s'", name)
	}
	binding := manager.Config().Region + "/" + manager.Config().InstanceId
	if other, exists := registry.bindings[binding]; exists {
		return fmt.Errorf("servers '%s' and '%s' are bound to the same instance %s", other, name, manager.Config().InstanceId)
	}
	registry.managers[name] = manager
	registry.bindings[binding] = name
	return nil
}

func (registry *Registry) Get(name string) (Manager, bool) {
	manager, ok := registry.managers[name]
	return manager, ok
}

func (registry *Registry) Names() []string {
	names := []string{}
	for name := range registry.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (registry *Registry) All() []Manager {
	managers := []Manager{}
	for _, name := range registry.Names() {
		managers = append(managers, registry.managers[name])
	}
	return managers
}

// Close disarms every manager.
func (registry *Registry) Close() {
	for _, manager := range registry.managers {
		manager.Close()
	}
}
