package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// InputFileName is the fixed name of the exported transcript inside a
	// chat folder.
	InputFileName = "_chat.txt"

	// OutputFileName is the fixed name of the annotated transcript written
	// next to the input.
	OutputFileName = "processed_chat.txt"
)

// Store holds the full transcript of one chat folder in memory between
// Load and Save. Media placeholders are rewritten in place; all other
// text is preserved byte for byte.
type Store struct {
	dir     string
	content string
	logger  *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Marker returns the placeholder the chat export uses for an attached file.
func Marker(filename string) string {
	return "<attached: " + filename + ">"
}

// InputPath returns the transcript path inside the store's folder.
func (s *Store) InputPath() string {
	return filepath.Join(s.dir, InputFileName)
}

// OutputPath returns the annotated transcript path inside the store's folder.
func (s *Store) OutputPath() string {
	return filepath.Join(s.dir, OutputFileName)
}

// Load reads the transcript into memory. On failure the store keeps no
// partial content.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.InputPath())
	if err != nil {
		s.content = ""
		return fmt.Errorf("read chat file: %w", err)
	}
	s.content = string(data)
	return nil
}

// Replace substitutes every occurrence of the placeholder for filename
// with "[kind: content]". Both filename and content are treated as opaque
// literal text; no pattern matching is involved, so content may safely
// contain any characters a model produced.
func (s *Store) Replace(filename, kind, content string) {
	marker := Marker(filename)
	replacement := "[" + kind + ": " + content + "]"

	count := strings.Count(s.content, marker)
	if count == 0 {
		s.logger.Debug("no placeholder found for media file", zap.String("file", filename))
		return
	}

	s.content = strings.ReplaceAll(s.content, marker, replacement)
	s.logger.Debug("replaced media placeholder",
		zap.String("file", filename),
		zap.String("kind", kind),
		zap.Int("occurrences", count),
	)
}

// Save writes the current content to the output file, overwriting any
// previous run's output.
func (s *Store) Save() error {
	if err := os.WriteFile(s.OutputPath(), []byte(s.content), 0o644); err != nil {
		return fmt.Errorf("save processed chat: %w", err)
	}
	return nil
}

// Content returns the transcript as currently held in memory.
func (s *Store) Content() string {
	return s.content
}
