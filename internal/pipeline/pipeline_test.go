package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/chatscribe/chatscribe/internal/chat"
	"github.com/chatscribe/chatscribe/internal/transcribe"
	"github.com/stretchr/testify/require"
)

func setupFolder(t *testing.T, chatContent string, mediaFiles ...string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, chat.InputFileName), []byte(chatContent), 0o644))
	for _, name := range mediaFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("media"), 0o644))
	}
	return dir
}

func readOutput(t *testing.T, dir string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, chat.OutputFileName))
	require.NoError(t, err)
	return string(data)
}

func staticTranscribe(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func staticDescribe(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func TestRunReplacesVoiceNotePlaceholder(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "before <attached: voice.opus> after", "voice.opus")

	proc := New(staticTranscribe("hello world"), staticDescribe("unused"), nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, "before [VOICE NOTE: hello world] after", readOutput(t, dir))
}

func TestRunReplacesImagePlaceholder(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "pic <attached: photo.jpg> end", "photo.jpg")

	proc := New(staticTranscribe("unused"), staticDescribe("a red bicycle"), nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, "pic [IMAGE: a red bicycle] end", readOutput(t, dir))
}

func TestRunIdentityWithoutMarkers(t *testing.T) {
	t.Parallel()

	original := "just a plain chat\nwith two lines\n"
	dir := setupFolder(t, original)

	proc := New(staticTranscribe(""), staticDescribe(""), nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, original, readOutput(t, dir))
}

func TestRunIgnoresUnsupportedExtensions(t *testing.T) {
	t.Parallel()

	original := "keep <attached: pic.png> and <attached: song.mp3>"
	dir := setupFolder(t, original, "pic.png", "song.mp3", "notes.pdf")

	called := false
	fail := func(context.Context, string) (string, error) {
		called = true
		return "", errors.New("should not be called")
	}

	proc := New(fail, fail, nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.False(t, called)
	require.Equal(t, original, readOutput(t, dir))
}

func TestRunMatchesExtensionsCaseInsensitively(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "<attached: SHOUT.OPUS> <attached: Pic.JPG>", "SHOUT.OPUS", "Pic.JPG")

	proc := New(staticTranscribe("loud words"), staticDescribe("a cat"), nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, "[VOICE NOTE: loud words] [IMAGE: a cat]", readOutput(t, dir))
}

func TestRunSkipsReservedFilenames(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "nothing to do")
	require.NoError(t, os.WriteFile(filepath.Join(dir, chat.OutputFileName), []byte("stale"), 0o644))

	var seen []string
	spy := func(_ context.Context, path string) (string, error) {
		seen = append(seen, filepath.Base(path))
		return "", nil
	}

	proc := New(spy, spy, nil)
	require.NoError(t, proc.Run(context.Background(), dir))
	require.Empty(t, seen)
}

func TestRunMissingChatFileFailsWithoutOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "voice.opus"), []byte("media"), 0o644))

	proc := New(staticTranscribe("x"), staticDescribe("y"), nil)
	err := proc.Run(context.Background(), dir)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, chat.OutputFileName))
	require.True(t, os.IsNotExist(statErr))
}

func TestRunIsIdempotentOnProcessedContent(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "msg <attached: voice.opus>", "voice.opus")

	proc := New(staticTranscribe("hi there"), staticDescribe(""), nil)
	require.NoError(t, proc.Run(context.Background(), dir))
	first := readOutput(t, dir)
	require.Equal(t, "msg [VOICE NOTE: hi there]", first)

	// Feed the processed output back in as the input transcript: the
	// original markers are gone, so nothing changes.
	require.NoError(t, os.WriteFile(filepath.Join(dir, chat.InputFileName), []byte(first), 0o644))
	require.NoError(t, proc.Run(context.Background(), dir))
	require.Equal(t, first, readOutput(t, dir))
}

func TestRunTranscriptionFailureBecomesInlinePlaceholder(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "a <attached: broken.opus> b <attached: fine.opus> c", "broken.opus", "fine.opus")

	transcribeFn := func(_ context.Context, path string) (string, error) {
		if filepath.Base(path) == "broken.opus" {
			return "", errors.New("decode error")
		}
		return "all good", nil
	}

	proc := New(transcribeFn, staticDescribe(""), nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, "a [VOICE NOTE: [Error transcribing audio: decode error]] b [VOICE NOTE: all good] c", readOutput(t, dir))
}

func TestRunMissingAudioBecomesFixedPlaceholder(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "<attached: gone.opus>", "gone.opus")

	transcribeFn := func(_ context.Context, path string) (string, error) {
		return "", fmt.Errorf("%w: %s", transcribe.ErrAudioNotFound, path)
	}

	proc := New(transcribeFn, staticDescribe(""), nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, "[VOICE NOTE: [Error: Audio file not found]]", readOutput(t, dir))
}

func TestRunDescriptionFailureBecomesInlinePlaceholder(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "<attached: photo.jpg>", "photo.jpg")

	describeFn := func(context.Context, string) (string, error) {
		return "", errors.New("vision backend returned status 500")
	}

	proc := New(staticTranscribe(""), describeFn, nil)
	require.NoError(t, proc.Run(context.Background(), dir))

	require.Equal(t, "[IMAGE: [Error processing image: vision backend returned status 500]]", readOutput(t, dir))
}

func TestRunEngineInitFailureAbortsRun(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "<attached: voice.opus>", "voice.opus")

	transcribeFn := func(context.Context, string) (string, error) {
		return "", fmt.Errorf("%w: model download failed", transcribe.ErrEngineInit)
	}

	proc := New(transcribeFn, staticDescribe(""), nil)
	err := proc.Run(context.Background(), dir)
	require.Error(t, err)
	require.ErrorIs(t, err, transcribe.ErrEngineInit)

	_, statErr := os.Stat(filepath.Join(dir, chat.OutputFileName))
	require.True(t, os.IsNotExist(statErr))
}

func TestRunRecoversFromPanicInBackend(t *testing.T) {
	t.Parallel()

	dir := setupFolder(t, "<attached: voice.opus>", "voice.opus")

	transcribeFn := func(context.Context, string) (string, error) {
		panic("backend went sideways")
	}

	proc := New(transcribeFn, staticDescribe(""), nil)
	err := proc.Run(context.Background(), dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected fault")
}

func TestRunMissingFolderFails(t *testing.T) {
	t.Parallel()

	proc := New(staticTranscribe(""), staticDescribe(""), nil)
	err := proc.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
