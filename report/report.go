package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/smallnest/researchchat/extract"
)

const (
	// DefaultDir is where artifacts are written when no directory is given.
	DefaultDir = "research_data"

	filePrefix    = "crew_research_"
	timeLayout    = "20060102_150405"
	safeTopicSize = 30
)

// ErrNotFound is returned by Load for a missing artifact.
var ErrNotFound = errors.New("report not found")

// Artifact is the persisted form of one finished research run.
type Artifact struct {
	Topic          string            `json:"topic"`
	Timestamp      time.Time         `json:"timestamp"`
	ResearchMethod string            `json:"research_method"`
	Subtopics      []extract.Section `json:"subtopics"`
	Summary        Summary           `json:"summary"`
}

// Summary carries the counters stored alongside the subtopics.
type Summary struct {
	TotalSubtopics int    `json:"total_subtopics"`
	ResearchDepth  string `json:"research_depth"`
	Sources        string `json:"sources"`
}

// NewArtifact builds the artifact for topic and its detailed sections.
func NewArtifact(topic string, sections []extract.Section, at time.Time) *Artifact {
	return &Artifact{
		Topic:          topic,
		Timestamp:      at.UTC(),
		ResearchMethod: "multi-agent crew",
		Subtopics:      sections,
		Summary: Summary{
			TotalSubtopics: len(sections),
			ResearchDepth:  "detailed",
			Sources:        "web + youtube",
		},
	}
}

// Entry describes a stored artifact.
type Entry struct {
	Path    string
	Topic   string
	ModTime time.Time
}

// Store writes artifacts as JSON files plus an HTML rendition next to them.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// Save persists the sections found for topic and returns the JSON path.
func (s *Store) Save(topic string, sections []extract.Section) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	now := s.now()
	artifact := NewArtifact(topic, sections, now)
	name := filePrefix + SafeTopic(topic) + "_" + now.Format(timeLayout)
	path := filepath.Join(s.dir, name+".json")

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	page := RenderHTML(artifact)
	if err := os.WriteFile(filepath.Join(s.dir, name+".html"), page, 0o644); err != nil {
		return path, fmt.Errorf("write report html: %w", err)
	}
	return path, nil
}

// Load reads the artifact stored at path.
func (s *Store) Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &a, nil
}

// List returns the stored artifacts, newest first.
func (s *Store) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		a, err := s.Load(m)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Path: m, Topic: a.Topic, ModTime: info.ModTime()})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return entries, nil
}

// SafeTopic reduces topic to a file-name fragment: letters, digits, '-' and
// '_' are kept, spaces become '_', and the result is cut to 30 runes.
func SafeTopic(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
	return extract.Truncate(safe, safeTopicSize)
}
