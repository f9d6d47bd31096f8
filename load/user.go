package load

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/ledokol-inc/moodle-load/load/variables"
)

// Task is one weighted action of a simulated user.
// A task whose precondition is not met must return nil without touching the network.
type Task struct {
	Name   string
	Weight int
	Tags   []string
	Run    func(ctx context.Context) error
}

// Behavior is the per-user state machine. The runner never calls it concurrently.
type Behavior interface {
	OnStart(ctx context.Context)
	Tasks() []Task
}

type UserContext struct {
	TestName     string
	ScenarioName string
	Index        int
	Rand         *rand.Rand
	Variables    map[string]*variables.Variable
}

type BehaviorFactory func(user UserContext) (Behavior, error)

var (
	behaviorsLock sync.RWMutex
	behaviors     = make(map[string]BehaviorFactory)
)

func RegisterBehavior(name string, factory BehaviorFactory) {
	behaviorsLock.Lock()
	defer behaviorsLock.Unlock()
	behaviors[name] = factory
}

func findBehavior(name string) (BehaviorFactory, error) {
	behaviorsLock.RLock()
	defer behaviorsLock.RUnlock()
	factory, ok := behaviors[name]
	if !ok {
		return nil, fmt.Errorf("unknown behavior %q, registered: %v", name, registeredBehaviors())
	}
	return factory, nil
}

func registeredBehaviors() []string {
	names := make([]string, 0, len(behaviors))
	for name := range behaviors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
