package supervisor

import (
	"strings"
	"testing"

	"github.com/entrhq/browseragent/pkg/secrets"
	"github.com/stretchr/testify/assert"
)

func TestShortProgress(t *testing.T) {
	assert.Equal(t, "Browser: 🚦 Starting task", shortProgress("🚦 Starting task"))
	assert.Equal(t, "Browser: last line", shortProgress("first\nlast line"))

	long := strings.Repeat("x", 60)
	assert.Equal(t, "Browser: "+strings.Repeat("x", 50)+"...", shortProgress("first\n"+long))
}

func TestNewProgressMasks(t *testing.T) {
	m := secrets.New(map[string]string{"TOKEN": "abc123"})
	p := newProgress([]string{"🚦 Starting task", "⌨️ Input abc123 into element [3]"}, "img:///tmp/x.png&t=1", m.Mask)

	assert.Equal(t, "🚦 Starting task\n⌨️ Input §§secret(TOKEN) into element [3]", p.Log)
	assert.Equal(t, "Browser: ⌨️ Input §§secret(TOKEN) into element [3]", p.Short)
	assert.Equal(t, "img:///tmp/x.png&t=1", p.Screenshot)
}

func TestScreenshotPath(t *testing.T) {
	assert.Equal(t, "/tmp/shots/a.png", ScreenshotPath("img:///tmp/shots/a.png&t=1700000000"))
	assert.Equal(t, "/tmp/shots/a.png", ScreenshotPath("/tmp/shots/a.png"))
	assert.Empty(t, ScreenshotPath(""))
}

func TestReporterFunc(t *testing.T) {
	var got Progress
	ReporterFunc(func(p Progress) { got = p }).Update(Progress{Short: "Browser: x"})
	assert.Equal(t, "Browser: x", got.Short)
}
