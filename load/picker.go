package load

import "math/rand"

type taskPicker struct {
	tasks       []Task
	totalWeight int
}

// newTaskPicker keeps tasks with a positive weight that carry one of the include tags
// (any task when include is empty) and none of the exclude tags.
func newTaskPicker(tasks []Task, include []string, exclude []string) *taskPicker {
	picker := &taskPicker{}
	for _, task := range tasks {
		if task.Weight <= 0 {
			continue
		}
		if len(include) > 0 && !hasAnyTag(task.Tags, include) {
			continue
		}
		if hasAnyTag(task.Tags, exclude) {
			continue
		}
		picker.tasks = append(picker.tasks, task)
		picker.totalWeight += task.Weight
	}
	return picker
}

func (picker *taskPicker) pick(rnd *rand.Rand) (Task, bool) {
	if picker.totalWeight == 0 {
		return Task{}, false
	}
	n := rnd.Intn(picker.totalWeight)
	for _, task := range picker.tasks {
		if n < task.Weight {
			return task, true
		}
		n -= task.Weight
	}
	return Task{}, false
}

func hasAnyTag(tags []string, wanted []string) bool {
	for _, tag := range tags {
		for _, w := range wanted {
			if tag == w {
				return true
			}
		}
	}
	return false
}
