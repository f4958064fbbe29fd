package desktop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/dotsave/internal/system"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestGraphicalSession(t *testing.T) {
	assert.True(t, GraphicalSession(env(map[string]string{"DISPLAY": ":0"})))
	assert.True(t, GraphicalSession(env(map[string]string{"WAYLAND_DISPLAY": "wayland-0"})))
	assert.False(t, GraphicalSession(env(nil)))
}

func TestOpen_PrefersFirstInstalled(t *testing.T) {
	r := system.NewFake("gio", "kde-open")
	used, err := Open(r, env(map[string]string{"DISPLAY": ":0"}), "/home/me/Backups")
	require.NoError(t, err)
	assert.Equal(t, "gio", used)
	assert.Equal(t, []string{"gio open /home/me/Backups"}, r.Started())
}

func TestOpen_NoSession(t *testing.T) {
	r := system.NewFake("xdg-open")
	_, err := Open(r, env(nil), "/tmp")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, r.Started())
}

func TestOpen_NoOpener(t *testing.T) {
	_, err := Open(system.NewFake(), env(map[string]string{"DISPLAY": ":0"}), "/tmp")
	assert.ErrorIs(t, err, ErrNoOpener)
}
