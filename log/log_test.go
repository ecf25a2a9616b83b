package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for name, expected := range map[string]int{
		"debug": LDebug,
		"INFO":  LInfo,
		"":      LInfo,
		"warn":  LError,
		"fatal": LCritical,
	} {
		level, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, level, name)
	}

	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestLevelGating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evtxdump.log")
	InitLogger(LError, path, true)
	defer InitLogger(LInfo, "", false)

	Infof("hidden %d", 0)
	Debugf("hidden %d", 1)

	Errorf("chunk %d corrupt", 3)
	WithFields(logrus.Fields{"offset": 512}).Error("bad record")
	DontPanicf("decoding chunk %d", 4)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "chunk 3 corrupt")
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"offset":512`)
	assert.Contains(t, out, "decoding chunk 4")
	assert.Contains(t, out, `"stack":`)
}
