package habit

// Lesson is the catalog information needed to recommend what to study next.
type Lesson struct {
	ID               string `json:"id" yaml:"id"`
	Title            string `json:"title" yaml:"title"`
	EstimatedMinutes *int   `json:"estimatedMinutes,omitempty" yaml:"estimated_minutes,omitempty"`
	Unlocked         bool   `json:"unlocked" yaml:"unlocked"`
}

// HasDuration reports whether the lesson declares a positive duration.
func (l Lesson) HasDuration() bool {
	return l.EstimatedMinutes != nil && *l.EstimatedMinutes > 0
}

// Minutes returns the declared duration, or 0 when unknown.
func (l Lesson) Minutes() int {
	if !l.HasDuration() {
		return 0
	}
	return *l.EstimatedMinutes
}

// ShortestAvailableLesson returns the unlocked, incomplete lesson with the
// lowest duration. Lessons without a duration count as infinitely long, so
// they are chosen only when no lesson declares one. Ties keep catalog order.
func ShortestAvailableLesson(lessons []Lesson, isCompleted func(lessonID string) bool) (Lesson, bool) {
	var (
		best  Lesson
		found bool
	)

	for _, l := range lessons {
		if !l.Unlocked || (isCompleted != nil && isCompleted(l.ID)) {
			continue
		}
		if !found || shorter(l, best) {
			best = l
			found = true
		}
	}
	return best, found
}

func shorter(a, b Lesson) bool {
	switch {
	case a.HasDuration() && !b.HasDuration():
		return true
	case !a.HasDuration():
		return false
	default:
		return a.Minutes() < b.Minutes()
	}
}
