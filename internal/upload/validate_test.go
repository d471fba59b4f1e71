package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	d     time.Duration
	err   error
	calls int
}

func (f *fakeProber) Duration(context.Context, string) (time.Duration, error) {
	f.calls++
	return f.d, f.err
}

func writeFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
	return path
}

func TestValidate_Accepts(t *testing.T) {
	for _, name := range []string{"clip.mp4", "clip.MOV", "clip.m4v", "clip.webm", "clip.mpeg", "clip.Mpg"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, 64)
			p := &fakeProber{d: 30 * time.Second}

			info, err := Validate(context.Background(), path, Limits{}, p)
			require.NoError(t, err)
			assert.Equal(t, name, info.Name)
			assert.Equal(t, int64(64), info.Size)
			assert.Equal(t, 30*time.Second, info.Duration)
			assert.NotEmpty(t, info.MimeType)
			assert.Equal(t, 1, p.calls)
		})
	}
}

func TestValidate_RejectsAVIWithoutIO(t *testing.T) {
	p := &fakeProber{}
	_, err := Validate(context.Background(), "/does/not/exist/clip.avi", Limits{}, p)
	require.ErrorIs(t, err, ErrInvalidFormat)
	assert.Equal(t, 0, p.calls)

	_, err = Validate(context.Background(), "/tmp/noext", Limits{}, p)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestValidate_TooLarge(t *testing.T) {
	path := writeFile(t, "big.mp4", 11)
	p := &fakeProber{}

	_, err := Validate(context.Background(), path, Limits{MaxBytes: 10}, p)
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, 0, p.calls, "size is checked before probing")

	_, err = Validate(context.Background(), path, Limits{MaxBytes: 11}, p)
	assert.NoError(t, err)
}

func TestValidate_Duration(t *testing.T) {
	path := writeFile(t, "long.mp4", 8)

	_, err := Validate(context.Background(), path, Limits{}, &fakeProber{d: 3*time.Minute + time.Second})
	require.ErrorIs(t, err, ErrDurationTooLong)

	_, err = Validate(context.Background(), path, Limits{}, &fakeProber{d: 3 * time.Minute})
	require.NoError(t, err)

	_, err = Validate(context.Background(), path, Limits{MaxDuration: time.Minute}, &fakeProber{d: 61 * time.Second})
	assert.ErrorIs(t, err, ErrDurationTooLong)
}

func TestValidate_ProbeFailure(t *testing.T) {
	path := writeFile(t, "broken.mp4", 8)
	probeErr := errors.Join(ErrInvalidFormat, errors.New("moov atom not found"))

	_, err := Validate(context.Background(), path, Limits{}, &fakeProber{err: probeErr})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestValidate_NilProberSkipsDuration(t *testing.T) {
	path := writeFile(t, "clip.mp4", 8)
	info, err := Validate(context.Background(), path, Limits{}, nil)
	require.NoError(t, err)
	assert.Zero(t, info.Duration)
}

func TestValidate_MissingOrEmptyFile(t *testing.T) {
	_, err := Validate(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), Limits{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Validate(context.Background(), writeFile(t, "empty.mp4", 0), Limits{}, nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension(".MP4"))
	assert.True(t, SupportedExtension("webm"))
	assert.False(t, SupportedExtension(".avi"))
	assert.False(t, SupportedExtension(".mkv"))
}
