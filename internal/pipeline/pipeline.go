package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chatscribe/chatscribe/internal/chat"
	"github.com/chatscribe/chatscribe/internal/transcribe"
	"go.uber.org/zap"
)

// Kind labels used in the annotated transcript.
const (
	KindVoiceNote = "VOICE NOTE"
	KindImage     = "IMAGE"
)

// Processor walks a chat folder, routes each media file to the matching
// backend and rewrites the transcript's placeholders with the results.
// Backend failures never abort the scan; they surface as inline error
// placeholders so the rest of the chat still gets annotated.
type Processor struct {
	Transcribe func(ctx context.Context, path string) (string, error)
	Describe   func(ctx context.Context, path string) (string, error)
	Logger     *zap.Logger
}

func New(transcribeFn, describeFn func(ctx context.Context, path string) (string, error), logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{Transcribe: transcribeFn, Describe: describeFn, Logger: logger}
}

// Run annotates the transcript in folder and writes the result next to it.
// It returns an error when the transcript cannot be read or written, or
// when the speech engine fails to initialize.
func (p *Processor) Run(ctx context.Context, folder string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("unexpected fault while processing folder", zap.Any("panic", r))
			err = fmt.Errorf("processing folder %s: unexpected fault: %v", folder, r)
		}
	}()

	store := chat.NewStore(folder, p.Logger)

	p.Logger.Info("reading chat file", zap.String("path", store.InputPath()))
	if err := store.Load(); err != nil {
		return err
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return fmt.Errorf("list chat folder: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if name == chat.InputFileName || name == chat.OutputFileName {
			continue
		}

		path := filepath.Join(folder, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".opus":
			p.Logger.Info("found audio file", zap.String("file", name))
			content, err := p.transcribeContent(ctx, path)
			if err != nil {
				return err
			}
			store.Replace(name, KindVoiceNote, content)

		case ".jpg":
			p.Logger.Info("found image file", zap.String("file", name))
			store.Replace(name, KindImage, p.describeContent(ctx, path))
		}
	}

	p.Logger.Info("saving processed chat", zap.String("path", store.OutputPath()))
	return store.Save()
}

// transcribeContent maps transcription outcomes to transcript content.
// Engine setup failure is the one fault that escapes: without a working
// engine every remaining voice note would fail the same way.
func (p *Processor) transcribeContent(ctx context.Context, path string) (string, error) {
	text, err := p.Transcribe(ctx, path)
	if err == nil {
		return text, nil
	}

	if errors.Is(err, transcribe.ErrEngineInit) {
		return "", err
	}

	p.Logger.Error("error processing audio file", zap.String("file", path), zap.Error(err))
	if errors.Is(err, transcribe.ErrAudioNotFound) {
		return "[Error: Audio file not found]", nil
	}
	return fmt.Sprintf("[Error transcribing audio: %v]", err), nil
}

func (p *Processor) describeContent(ctx context.Context, path string) string {
	text, err := p.Describe(ctx, path)
	if err != nil {
		p.Logger.Error("error processing image file", zap.String("file", path), zap.Error(err))
		return fmt.Sprintf("[Error processing image: %v]", err)
	}
	return text
}
