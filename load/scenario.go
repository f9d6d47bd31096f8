package load

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ledokol-inc/moodle-load/load/variables"
)

const (
	ActionStart    = "start"
	ActionDuration = "duration"
	ActionStop     = "stop"

	defaultWaitMin = 2.0
	defaultWaitMax = 5.0
)

type Step struct {
	Action             string
	TotalUsersCount    int
	CountUsersByPeriod int
	// seconds
	Period float64
}

type Scenario struct {
	Name     string
	Behavior string
	Steps    []*Step
	// seconds between two tasks of the same user, picked uniformly
	WaitMin     float64
	WaitMax     float64
	Tags        []string
	ExcludeTags []string

	factory         BehaviorFactory
	variables       map[string]*variables.Variable
	stopUserChannel chan bool
	users           *sync.WaitGroup
	userCounter     *int64
	running         *int64
	sink            ResultSink
	testId          string
}

func (scenario *Scenario) waitTime(rnd *rand.Rand) time.Duration {
	seconds := scenario.WaitMin + rnd.Float64()*(scenario.WaitMax-scenario.WaitMin)
	return time.Duration(seconds * float64(time.Second))
}
