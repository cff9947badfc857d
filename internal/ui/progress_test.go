package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlainRendersProgressLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)

	p.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 3, Total: 10, Message: "42 chunks"})
	p.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "docs"})
	p.UpdateProgress(ProgressEvent{Stage: StageChunking}) // nothing to say, nothing printed

	out := buf.String()
	assert.Contains(t, out, "[EMBED] 3/10 42 chunks")
	assert.Contains(t, out, "[SCAN] docs")
	assert.NotContains(t, out, "[CHUNK]")
}

func TestPlainRendersErrorsAndCompletion(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf)

	p.AddError(ErrorEvent{File: "bad.md", Err: errors.New("unreadable")})
	p.AddError(ErrorEvent{Err: errors.New("transient"), Warn: true})
	p.Complete(CompletionStats{
		Files:    4,
		Chunks:   17,
		Duration: 1500 * time.Millisecond,
		Errors:   1,
		Warnings: 1,
		Embedder: EmbedderInfo{Backend: "static", Model: "static-hash-v1", Dimensions: 256},
	})

	out := buf.String()
	assert.Contains(t, out, "ERROR bad.md: unreadable")
	assert.Contains(t, out, "WARN: transient")
	assert.Contains(t, out, "[DONE] 4 files, 17 chunks in 1.5s (1 errors, 1 warnings)")
	assert.Contains(t, out, "embedder: static (static-hash-v1, 256 dims)")
}

func TestNoopDiscards(t *testing.T) {
	var r Renderer = Noop{}
	r.UpdateProgress(ProgressEvent{})
	r.AddError(ErrorEvent{})
	r.Complete(CompletionStats{})
}
