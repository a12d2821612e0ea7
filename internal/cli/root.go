package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chatscribe/chatscribe/internal/chat"
	"github.com/chatscribe/chatscribe/internal/config"
	"github.com/chatscribe/chatscribe/internal/logging"
	"github.com/chatscribe/chatscribe/internal/media"
	"github.com/chatscribe/chatscribe/internal/pipeline"
	"github.com/chatscribe/chatscribe/internal/platform"
	"github.com/chatscribe/chatscribe/internal/transcribe"
	"github.com/chatscribe/chatscribe/internal/version"
	"github.com/chatscribe/chatscribe/internal/vision"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

// defaultFolder is used when the interactive prompt receives empty input.
const defaultFolder = "chat_folder"

type appState struct {
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	envFile      string
	model        string
	modelDir     string
	language     string
	autoDownload bool
	ollamaURL    string
	visionModel  string
	visionPrompt string
	silenceGate  bool
	silenceDBFS  float64

	logger *zap.Logger
	in     io.Reader
	out    io.Writer

	preflightFn  func(ctx context.Context) error
	transcribeFn func(ctx context.Context, path string) (string, error)
	describeFn   func(ctx context.Context, path string) (string, error)
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		autoDownload: true,
		silenceGate:  true,
		silenceDBFS:  -65,
		in:           os.Stdin,
		out:          os.Stdout,
	}
	app.preflightFn = app.checkEnvironment

	cmd := &cobra.Command{
		Use:           "chatscribe",
		Short:         "Annotate exported chat transcripts with voice note transcriptions and image descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger

			cfg, err := config.Load(app.envFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			app.applyConfig(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runDefault(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindVisionFlags(cmd, app)
	bindSilenceFlags(cmd, app)

	cmd.AddCommand(newProcessCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.Flags().StringVar(&app.envFile, "env-file", app.envFile, "Path to a .env file with CHATSCRIBE_* settings")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.model, "model", app.model, "Speech model name or model file path (default \"base\")")
	cmd.Flags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where speech models are stored")
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
	cmd.Flags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing speech models")
}

func bindVisionFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.ollamaURL, "ollama-url", app.ollamaURL, "Base URL of the Ollama vision service (default \"http://localhost:11434\")")
	cmd.Flags().StringVar(&app.visionModel, "vision-model", app.visionModel, "Vision model used for image descriptions")
	cmd.Flags().StringVar(&app.visionPrompt, "vision-prompt", app.visionPrompt, "Prompt sent with each image")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent voice notes and skip transcription")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

// applyConfig fills in every setting the user did not pass as a flag.
func (a *appState) applyConfig(cfg *config.Config) {
	if a.ollamaURL == "" {
		a.ollamaURL = cfg.OllamaURL
	}
	if a.visionModel == "" {
		a.visionModel = cfg.VisionModel
	}
	if a.visionPrompt == "" {
		a.visionPrompt = cfg.VisionPrompt
	}
	if a.model == "" {
		a.model = cfg.Model
	}
	if a.modelDir == "" {
		a.modelDir = cfg.ModelDir
	}
	if a.language == "" {
		a.language = cfg.Language
	}
	a.language = sanitizeLanguage(a.language)
}

func (a *appState) runDefault(ctx context.Context) error {
	folder, err := promptForFolder(a.inReader(), a.outWriter())
	if err != nil {
		return err
	}

	fmt.Fprintf(a.outWriter(), "\nProcessing chat folder: %s\n", folder)
	fmt.Fprintln(a.outWriter(), "This may take a while depending on the number of files...")

	if err := a.processFolder(ctx, folder); err != nil {
		a.log().Error("chat processing failed", zap.Error(err))
		fmt.Fprintln(a.outWriter(), "\nError: chat processing failed. Check the logs for details.")
		return err
	}

	fmt.Fprintln(a.outWriter(), "\nSuccess! Chat processing completed.")
	fmt.Fprintf(a.outWriter(), "Processed chat saved to: %s\n", filepath.Join(folder, chat.OutputFileName))
	return nil
}

func promptForFolder(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter the path to your exported chat folder: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read folder path: %w", err)
	}

	folder := strings.TrimSpace(line)
	if folder == "" {
		folder = defaultFolder
	}
	return folder, nil
}

func (a *appState) processFolder(ctx context.Context, folder string) error {
	preflightFn := a.preflightFn
	if preflightFn == nil {
		preflightFn = a.checkEnvironment
	}
	if err := preflightFn(ctx); err != nil {
		return err
	}

	transcribeFn := a.transcribeFn
	if transcribeFn == nil {
		transcriber := transcribe.New(transcribe.Options{
			Model:        a.model,
			ModelDir:     a.modelDir,
			Language:     a.language,
			AutoDownload: a.autoDownload,
			NoProgress:   a.noProgress,
			SilenceGate:  a.silenceGate,
			SilenceDBFS:  a.silenceDBFS,
			Logger:       a.log(),
		})
		transcribeFn = a.withSpinner("Transcribing", transcriber.Transcribe)
	}

	describeFn := a.describeFn
	if describeFn == nil {
		describer := vision.NewDescriber(a.ollamaURL, a.visionModel, a.visionPrompt, a.log())
		describeFn = a.withSpinner("Describing", describer.Describe)
	}

	proc := pipeline.New(transcribeFn, describeFn, a.log())
	return proc.Run(ctx, folder)
}

// checkEnvironment runs before any media work. Voice notes cannot be
// decoded without ffmpeg.
func (a *appState) checkEnvironment(ctx context.Context) error {
	if err := media.CheckFFmpeg(ctx); err != nil {
		a.log().Error("ffmpeg is not installed or not found in PATH", zap.Error(err))
		return err
	}
	return nil
}

func (a *appState) withSpinner(description string, fn func(ctx context.Context, path string) (string, error)) func(ctx context.Context, path string) (string, error) {
	return func(ctx context.Context, path string) (string, error) {
		stop := startSpinner(a.progressEnabled(), description)
		defer stop()
		return fn(ctx, path)
	}
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) inReader() io.Reader {
	if a.in == nil {
		return os.Stdin
	}
	return a.in
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
