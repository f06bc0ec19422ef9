package library

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/oracle"
)

// Synthesize returns audio for text, blocking until the oracle answers.
func (l *Library) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if l.opts.Speech == nil {
		return nil, oracle.ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	return l.opts.Speech.Synthesize(ctx, text)
}

// Speak synthesizes text in the background and hands the audio to sink.
// Failures are logged and never reported to the caller. The returned channel
// is closed when the request has finished.
func (l *Library) Speak(ctx context.Context, text string, sink func([]byte)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.SpeechTimeout)
		defer cancel()
		audio, err := l.Synthesize(ctx, text)
		if err != nil {
			l.log.Warn("speech synthesis failed", zap.Error(err), zap.Int("chars", len([]rune(text))))
			return
		}
		if sink != nil {
			sink(audio)
		}
	}()
	return done
}
