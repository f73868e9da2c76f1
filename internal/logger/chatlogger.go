package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Transcript writes the story of each campaign to
// <dir>/<campaign>/<date>.log, rotating files when the day changes.
type Transcript struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	date  string
	files map[string]*os.File
}

func NewTranscript(dir string) *Transcript {
	return &Transcript{
		dir:   dir,
		now:   time.Now,
		files: make(map[string]*os.File),
	}
}

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "|", "-",
	"\"", "'", "<", "(", ">", ")",
)

func sanitizeFilename(name string) string {
	name = filenameReplacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name
}

// Line appends "[15:04:05] <speaker> text" to the campaign's transcript.
// Failures are reported through Errorf and otherwise ignored.
func (t *Transcript) Line(campaign, speaker, text string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	f, err := t.file(campaign, now.Format("2006-01-02"))
	if err != nil {
		Errorf("Failed to open transcript for %s: %v", campaign, err)
		return
	}

	if _, err := fmt.Fprintf(f, "[%s] <%s> %s\n", now.Format("15:04:05"), speaker, text); err != nil {
		Errorf("Failed to write transcript for %s: %v", campaign, err)
	}
}

func (t *Transcript) file(campaign, date string) (*os.File, error) {
	if date != t.date {
		t.closeAll()
		t.date = date
	}

	if f, ok := t.files[campaign]; ok {
		return f, nil
	}

	dir := filepath.Join(t.dir, sanitizeFilename(campaign))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, date+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	t.files[campaign] = f
	return f, nil
}

func (t *Transcript) closeAll() {
	for key, f := range t.files {
		f.Close()
		delete(t.files, key)
	}
}

// Close closes every open transcript file.
func (t *Transcript) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeAll()
}
