package display

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	mu      sync.Mutex
	status  string
	updates atomic.Uint64
}

func (f *fakeSource) Publish(status string) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	f.updates.Add(1)
}

func (f *fakeSource) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSource) Updates() uint64 {
	return f.updates.Load()
}

// syncBuffer guards a bytes.Buffer written by the status goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStatusLine_NonInteractivePrintsEachNewStatus(t *testing.T) {
	source := &fakeSource{}
	out := &syncBuffer{}
	line := NewStatusLine(source, out, plainColors(), nil)
	line.SetInterval(time.Millisecond)
	line.Start()

	source.Publish("Backup about 10% done: copying ibdata1")
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "10% done")
	}, time.Second, time.Millisecond)

	source.Publish("Backup about 90% done: copying binlog.000001")
	line.Stop("Backup complete")

	output := out.String()
	assert.Equal(t, 1, strings.Count(output, "10% done"), "unchanged status is not repeated")
	assert.Contains(t, output, "90% done")
	assert.True(t, strings.HasSuffix(output, "Backup complete\n"))
	assert.NotContains(t, output, "\r")
}

func TestStatusLine_InteractiveRewritesLine(t *testing.T) {
	source := &fakeSource{}
	source.Publish("Backup about 50% done: copying")
	out := &syncBuffer{}
	line := NewStatusLine(source, out, plainColors(), nil)
	line.SetInteractive(true)
	line.SetInterval(time.Millisecond)
	line.Start()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "\r\033[K")
	}, time.Second, time.Millisecond)
	line.Stop("")

	output := out.String()
	assert.Contains(t, output, "- Backup about 50% done: copying")
	assert.True(t, strings.HasSuffix(output, "\r\033[KBackup about 50% done: copying\n"))
}

func TestStatusLine_StopWithoutStart(t *testing.T) {
	source := &fakeSource{}
	source.Publish("Backup about 100% done: finished")
	out := &syncBuffer{}
	line := NewStatusLine(source, out, plainColors(), nil)

	line.Stop("done")
	line.Stop("again")
	assert.Equal(t, "Backup about 100% done: finished\ndone\n", out.String())
}

func TestStatusLine_Truncate(t *testing.T) {
	line := NewStatusLine(&fakeSource{}, &bytes.Buffer{}, plainColors(), nil)
	line.width = 20

	assert.Equal(t, "short", line.truncate("short", 2))
	truncated := line.truncate(strings.Repeat("x", 40), 2)
	assert.Len(t, truncated, 17)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}
