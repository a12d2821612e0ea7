package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chatscribe/chatscribe/internal/audio"
	"github.com/chatscribe/chatscribe/internal/download"
	"github.com/chatscribe/chatscribe/internal/media"
	"github.com/chatscribe/chatscribe/internal/platform"
	"github.com/chatscribe/chatscribe/internal/whisper"
	"go.uber.org/zap"
)

var (
	// ErrAudioNotFound means the voice note referenced by the transcript is
	// missing from the folder.
	ErrAudioNotFound = errors.New("audio file not found")

	// ErrEngineInit means the speech engine or its model could not be set
	// up. Unlike per-file failures this aborts the whole run.
	ErrEngineInit = errors.New("speech engine initialization failed")
)

// Options configures a Transcriber.
type Options struct {
	Model        string
	ModelDir     string
	Language     string
	AutoDownload bool
	NoProgress   bool
	SilenceGate  bool
	SilenceDBFS  float64
	Logger       *zap.Logger
}

// Transcriber turns one voice note into text. The speech engine and its
// model are expensive to set up, so initialization is deferred until the
// first audio file actually shows up and the handle is reused afterwards.
type Transcriber struct {
	opts Options

	engine    whisper.Engine
	modelPath string
	initErr   error
	inited    bool

	// seams for tests
	initFn    func(ctx context.Context) (whisper.Engine, string, error)
	convertFn func(ctx context.Context, srcPath, tmpDir string) (string, error)
}

func New(opts Options) *Transcriber {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	t := &Transcriber{opts: opts}
	t.initFn = t.setupEngine
	t.convertFn = func(ctx context.Context, srcPath, tmpDir string) (string, error) {
		return media.ConvertToWAV(ctx, srcPath, tmpDir, opts.Logger)
	}
	return t
}

// Transcribe resolves audioPath to an absolute path, decodes it to WAV and
// runs the speech engine over it. The transcription is returned with
// surrounding whitespace trimmed.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	abs, err := filepath.Abs(audioPath)
	if err != nil {
		return "", fmt.Errorf("resolve audio path: %w", err)
	}

	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrAudioNotFound, abs)
		}
		return "", fmt.Errorf("stat audio file: %w", err)
	}

	if err := t.ensureReady(ctx); err != nil {
		return "", err
	}

	wavPath, err := t.convertFn(ctx, abs, os.TempDir())
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	defer func() {
		if err := os.Remove(wavPath); err != nil {
			t.opts.Logger.Warn("failed to remove converted audio", zap.String("path", wavPath), zap.Error(err))
		}
	}()

	if t.opts.SilenceGate {
		if silent := t.isSilent(wavPath); silent {
			t.opts.Logger.Info("voice note considered silent; skipping engine", zap.String("audio", abs))
			return "", nil
		}
	}

	t.opts.Logger.Info("transcribing voice note", zap.String("audio", abs), zap.String("model", t.modelPath))
	text, err := t.engine.Transcribe(ctx, whisper.TranscriptionRequest{
		AudioPath: wavPath,
		ModelPath: t.modelPath,
		Language:  t.opts.Language,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

// ensureReady performs the one-time engine and model setup. A failed
// attempt is remembered so repeated calls fail fast with the same error.
func (t *Transcriber) ensureReady(ctx context.Context) error {
	if t.inited {
		return t.initErr
	}
	t.inited = true

	engine, modelPath, err := t.initFn(ctx)
	if err != nil {
		t.initErr = fmt.Errorf("%w: %v", ErrEngineInit, err)
		return t.initErr
	}

	t.engine = engine
	t.modelPath = modelPath
	return nil
}

func (t *Transcriber) setupEngine(ctx context.Context) (whisper.Engine, string, error) {
	t.opts.Logger.Info("loading speech engine", zap.String("model", modelRefOrDefault(t.opts.Model)))

	engine, err := whisper.NewCLIEngine(t.opts.Logger)
	if err != nil {
		return nil, "", err
	}

	modelDir := t.opts.ModelDir
	if modelDir == "" {
		modelDir, err = platform.ResolveModelDir("")
		if err != nil {
			return nil, "", err
		}
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create model directory %s: %w", modelDir, err)
	}

	resolved, err := whisper.ResolveModel(t.opts.Model, modelDir)
	if err != nil {
		return nil, "", err
	}

	if resolved.NeedsDownload {
		if !t.opts.AutoDownload {
			return nil, "", fmt.Errorf("model %q is missing at %s; run `chatscribe setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, resolved.Name)
		}

		t.opts.Logger.Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
		if err := download.DownloadFile(ctx, download.Options{
			URL:            resolved.URL,
			Destination:    resolved.Path,
			ExpectedSHA256: resolved.SHA256,
			ChecksumURL:    resolved.SHA256URL,
			NoProgress:     t.opts.NoProgress,
			Logger:         t.opts.Logger,
		}); err != nil {
			return nil, "", fmt.Errorf("download model %q: %w", resolved.Name, err)
		}
	}

	return engine, resolved.Path, nil
}

func (t *Transcriber) isSilent(wavPath string) bool {
	silent, metrics, err := audio.IsSilentWAV(wavPath, t.opts.SilenceDBFS)
	if err != nil {
		t.opts.Logger.Warn("silence analysis failed; transcribing anyway", zap.Error(err), zap.String("audio", wavPath))
		return false
	}
	if silent {
		t.opts.Logger.Debug("silence metrics",
			zap.Float64("rms_dbfs", metrics.RMSdBFS),
			zap.Float64("peak_dbfs", metrics.PeakdBFS),
			zap.Float64("threshold_dbfs", t.opts.SilenceDBFS),
		)
	}
	return silent
}

func modelRefOrDefault(model string) string {
	if strings.TrimSpace(model) == "" {
		return whisper.DefaultModel
	}
	return model
}
