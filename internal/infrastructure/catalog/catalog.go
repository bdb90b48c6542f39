// Package catalog loads the lesson catalog used to recommend the next lesson.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/learnsync/internal/domain/habit"
)

// ErrInvalidCatalog is returned when a catalog file fails validation.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

// Catalog is an ordered list of lessons. Order matters: recommendation ties
// keep catalog order.
type Catalog struct {
	Lessons []habit.Lesson `yaml:"lessons"`

	index map[string]int
}

// Empty returns a catalog without lessons.
func Empty() *Catalog {
	return &Catalog{index: map[string]int{}}
}

// LoadFile reads and validates a YAML catalog. An empty path yields an
// empty catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Empty(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	var errs []string
	c.index = make(map[string]int, len(c.Lessons))

	for i, l := range c.Lessons {
		id := strings.TrimSpace(l.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Sprintf("lesson #%d has no id", i+1))
			continue
		case id != l.ID:
			errs = append(errs, fmt.Sprintf("lesson %q has surrounding whitespace", l.ID))
		}
		if _, dup := c.index[id]; dup {
			errs = append(errs, fmt.Sprintf("lesson %q is listed twice", id))
			continue
		}
		if l.EstimatedMinutes != nil && *l.EstimatedMinutes < 0 {
			errs = append(errs, fmt.Sprintf("lesson %q has negative estimated_minutes", id))
		}
		c.index[id] = i
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(errs, "; "))
	}
	return nil
}

// Len returns the number of lessons.
func (c *Catalog) Len() int {
	return len(c.Lessons)
}

// Lookup returns the lesson with the given id.
func (c *Catalog) Lookup(id string) (habit.Lesson, bool) {
	i, ok := c.index[id]
	if !ok {
		return habit.Lesson{}, false
	}
	return c.Lessons[i], true
}

// Recommend returns the shortest unlocked lesson not yet completed.
func (c *Catalog) Recommend(isCompleted func(lessonID string) bool) (habit.Lesson, bool) {
	return habit.ShortestAvailableLesson(c.Lessons, isCompleted)
}
