package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of the mirror file.
type document struct {
	GeneratedAtMs idtime.Millis `yaml:"generated_at_ms"`
	Lessons       []entry       `yaml:"lessons"`
}

type entry struct {
	LessonID       idtime.LessonID `yaml:"lesson_id"`
	Category       string          `yaml:"category"`
	Type           string          `yaml:"type"`
	Content        string          `yaml:"content"`
	Rule           string          `yaml:"rule,omitempty"`
	Alternative    string          `yaml:"alternative,omitempty"`
	Confidence     float64         `yaml:"confidence"`
	TimesValidated int             `yaml:"times_validated"`
	TimesViolated  int             `yaml:"times_violated"`
	CreatedAtMs    idtime.Millis   `yaml:"created_at_ms"`
}

// FileSink writes promoted lessons to a single YAML file at Path, via a
// temp-file-then-rename so a reader never observes a half-written file.
type FileSink struct {
	Path string
	now  idtime.Clock
}

// NewFileSink builds a FileSink rooted at path, creating its parent
// directory if necessary.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "mirror_mkdir", Err: err}
	}
	return &FileSink{Path: path, now: idtime.SystemClock}, nil
}

func (f *FileSink) Write(ctx context.Context, lessons []store.Lesson) error {
	doc := document{GeneratedAtMs: f.now(), Lessons: make([]entry, 0, len(lessons))}
	for _, l := range lessons {
		doc.Lessons = append(doc.Lessons, entry{
			LessonID:       l.LessonID,
			Category:       l.Category,
			Type:           l.Type,
			Content:        l.Content,
			Rule:           l.Rule,
			Alternative:    l.Alternative,
			Confidence:     l.Confidence,
			TimesValidated: l.TimesValidated,
			TimesViolated:  l.TimesViolated,
			CreatedAtMs:    l.CreatedAtMs,
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "mirror_marshal", Err: err}
	}

	tmp := f.Path + fmt.Sprintf(".tmp-%d", f.now())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "mirror_write_temp", Err: err}
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		_ = os.Remove(tmp)
		return &errs.StorageError{Kind: errs.StorageIO, Op: "mirror_rename", Err: err}
	}
	return nil
}
