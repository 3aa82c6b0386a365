package logger

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, levelDebug, parseLevel("debug"))
	assert.Equal(t, levelDebug, parseLevel("trace"))
	assert.Equal(t, levelInfo, parseLevel("info"))
	assert.Equal(t, levelInfo, parseLevel(""))
}

func TestTag(t *testing.T) {
	SetPrefix("")
	assert.Equal(t, "", tag())
	SetPrefix("sessiond")
	t.Cleanup(func() { SetPrefix("") })
	assert.Equal(t, "[sessiond] ", tag())
}

func TestSetOutputFile_EmptyPathIsNoop(t *testing.T) {
	c, err := SetOutputFile(FileOptions{})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestSetOutputFile_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sessiond.log")
	c, err := SetOutputFile(FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		_ = c.Close()
	})

	Infof("hello %s", "file")

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && len(data) > 0
	}, 2*time.Second, 10*time.Millisecond)
}
