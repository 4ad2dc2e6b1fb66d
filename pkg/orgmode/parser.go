// Package orgmode imports TODO and DONE headlines from Org-mode files as tasks.
package orgmode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/harrisonrobin/agendify/pkg/model"
)

var (
	headlineRegex = regexp.MustCompile(`^\*+\s+(TODO|DONE)\b\s*(?:\[#([A-Z])\])?\s*(.*?)(?:\s+(:(\w+(:\w+)*):))?\s*$`)
	deadlineRegex = regexp.MustCompile(`DEADLINE:\s+<(\d{4}-\d{2}-\d{2})(?:\s+[A-Za-z]{2,3})?(?:\s+(\d{1,2}:\d{2}))?[^>]*>`)
	idRegex       = regexp.MustCompile(`^:ID:\s+(\S+)`)
	anyHeadline   = regexp.MustCompile(`^\*+\s`)
)

// Entry is a parsed headline. OrgID is the :ID: property when present.
type Entry struct {
	OrgID string
	Task  model.Task
}

// ParseFiles parses multiple Org-mode files in order.
func ParseFiles(filePaths []string, loc *time.Location) ([]Entry, error) {
	var all []Entry
	for _, path := range filePaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		entries, err := Parse(f, loc)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		all = append(all, entries...)
	}
	return all, nil
}

// Parse reads headlines from r. A DEADLINE without a clock time is due at the
// start of that day in loc. [#A], [#B] and [#C] map to high, medium and low.
func Parse(r io.Reader, loc *time.Location) ([]Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	scanner := bufio.NewScanner(r)
	var entries []Entry
	var current *Entry

	flush := func() {
		if current != nil && current.Task.Title != "" {
			entries = append(entries, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := headlineRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &Entry{Task: model.Task{
				Title:     strings.TrimSpace(m[3]),
				Completed: m[1] == "DONE",
				Priority:  priority(m[2]),
			}}
			continue
		}
		if anyHeadline.MatchString(line) {
			flush()
			continue
		}
		if current == nil {
			continue
		}

		if m := deadlineRegex.FindStringSubmatch(line); m != nil {
			if due, err := deadline(m[1], m[2], loc); err == nil {
				current.Task.DueAt = &due
			}
		} else if m := idRegex.FindStringSubmatch(line); m != nil {
			current.OrgID = m[1]
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func deadline(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		return time.ParseInLocation("2006-01-02", date, loc)
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
}

func priority(cookie string) model.Priority {
	switch cookie {
	case "A":
		return model.PriorityHigh
	case "C":
		return model.PriorityLow
	}
	return model.PriorityMedium
}
