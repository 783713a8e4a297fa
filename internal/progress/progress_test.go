package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBar_RendersCounts(t *testing.T) {
	var buf bytes.Buffer
	b := NewForTest(&buf, 10)

	b.Start("Aligning loci", 4)
	b.Increment()
	b.Increment()

	out := buf.String()
	assert.Contains(t, out, "Aligning loci")
	assert.Contains(t, out, "(2/4)")
	assert.Contains(t, out, "\r", "bar must overwrite in place")
}

func TestBar_DoneCompletesAndBreaksLine(t *testing.T) {
	var buf bytes.Buffer
	b := NewForTest(&buf, 10)

	b.Start("Trimming", 3)
	b.Increment()
	b.Done()

	out := buf.String()
	assert.Contains(t, out, "(3/3)")
	assert.Contains(t, out, "100%")
	assert.True(t, strings.HasSuffix(out, "\n"), "Done must move to a fresh line")
}

func TestBar_IncrementNeverExceedsTotal(t *testing.T) {
	var buf bytes.Buffer
	b := NewForTest(&buf, 10)

	b.Start("Models", 2)
	for i := 0; i < 5; i++ {
		b.Increment()
	}
	assert.Contains(t, buf.String(), "(2/2)")
}

func TestBar_DisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	b := &Bar{w: &buf} // not a terminal, not enabled

	b.Start("Silent", 5)
	b.Increment()
	b.Done()

	assert.Empty(t, buf.String())
}

func TestBar_ConcurrentIncrements(t *testing.T) {
	var buf bytes.Buffer
	b := NewForTest(&buf, 10)

	const units = 50
	b.Start("Parallel", units)

	var wg sync.WaitGroup
	for i := 0; i < units; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Increment()
		}()
	}
	wg.Wait()
	b.Done()

	assert.Contains(t, buf.String(), "(50/50)")
}
