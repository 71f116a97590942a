package recovery

import "sync"

// CascadingFailure is emitted when a component is reported unhealthy,
// naming the transitive set of components that depend on it.
type CascadingFailure struct {
	Component  string
	Dependents []string
}

// CascadeSubscriber receives CascadingFailure events. The coordinator never
// acts on these itself (spec.md §4.7: "the core itself never modifies
// policy in response; users choose") — it only notifies.
type CascadeSubscriber func(CascadingFailure)

// CascadeCoordinator maintains a dependency graph (component -> the
// components that depend on it) and detects the transitive blast radius
// of a component going unhealthy.
type CascadeCoordinator struct {
	mu          sync.RWMutex
	dependents  map[string][]string
	subscribers []CascadeSubscriber
}

func NewCascadeCoordinator() *CascadeCoordinator {
	return &CascadeCoordinator{dependents: map[string][]string{}}
}

// DependsOn records that dependent relies on dependency: if dependency
// becomes unhealthy, dependent is part of its cascade.
func (c *CascadeCoordinator) DependsOn(dependent, dependency string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dependents[dependency] = append(c.dependents[dependency], dependent)
}

// Subscribe registers a subscriber notified on every ReportUnhealthy call.
func (c *CascadeCoordinator) Subscribe(sub CascadeSubscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, sub)
}

// DetectCascade returns the transitive set of components depending on
// component, directly or indirectly.
func (c *CascadeCoordinator) DetectCascade(component string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := map[string]struct{}{}
	var walk func(name string)
	walk = func(name string) {
		for _, dep := range c.dependents[name] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			walk(dep)
		}
	}
	walk(component)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out
}

// ReportUnhealthy tells the coordinator component has gone unhealthy; it
// computes the cascade and broadcasts it to every subscriber.
func (c *CascadeCoordinator) ReportUnhealthy(component string) {
	event := CascadingFailure{Component: component, Dependents: c.DetectCascade(component)}

	c.mu.RLock()
	subs := make([]CascadeSubscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}
