package chatbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/korylprince/chat-image-relay/imagegen"
	"github.com/korylprince/chat-image-relay/metrics"
	"go.uber.org/zap"
)

// ImageRunner produces one result per image variant for a directive payload
type ImageRunner interface {
	Run(ctx context.Context, payload string) []imagegen.Result
}

// turnRunner runs one chat turn: completion stream, directive scan, and image fetches
type turnRunner struct {
	log          *zap.Logger
	metrics      *metrics.Metrics
	completer    Completer
	images       ImageRunner
	pattern      *Pattern
	scanMaxBytes int
}

// run processes input against conv and sends all resulting events to sink.
// Events are sent in order: user echo, visible ai text, ai_complete, then image results.
// The returned error is for logging; any client-facing error has already been sent.
func (r *turnRunner) run(ctx context.Context, conv *Conversation, sink Sink, input string) error {
	if conv == nil {
		r.metrics.Turns.WithLabelValues(metrics.TurnDropped).Inc()
		return ErrMissingContext
	}

	if err := sink.Send(userEvent(input)); err != nil {
		return fmt.Errorf("could not echo message: %w: %w", errSendFailed, err)
	}
	conv.Append(RoleUser, input)

	// stops the completion stream on every early return
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := r.completer.StreamCompletion(ctx, conv.Snapshot())
	if err != nil {
		return r.upstreamFailed(ctx, conv, sink, "", err)
	}

	scanner := NewScanner(r.pattern, r.scanMaxBytes)
	emitter := NewEmitter(sink, r.pattern)
	var full strings.Builder

	for chunk := range stream {
		if chunk.Err != nil {
			return r.upstreamFailed(ctx, conv, sink, full.String(), chunk.Err)
		}
		if chunk.Content == "" {
			continue
		}
		r.metrics.Chunks.Inc()
		full.WriteString(chunk.Content)

		wasOverflow := scanner.Overflowed()
		scanner.Write(chunk.Content)
		if scanner.Overflowed() && !wasOverflow {
			r.log.Warn("Scan buffer full; ignoring further output for directives", zap.Int("bytes", scanner.Len()))
		}

		if err := emitter.Chunk(chunk.Content); err != nil {
			return fmt.Errorf("could not send chunk: %w: %w", errSendFailed, err)
		}
	}

	// the stream closes without an error chunk when ctx is cancelled
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := emitter.Flush(); err != nil {
		return fmt.Errorf("could not send chunk: %w: %w", errSendFailed, err)
	}

	detected := scanner.Detected()
	if err := emitter.Complete(detected); err != nil {
		return fmt.Errorf("could not send completion: %w: %w", errSendFailed, err)
	}

	response := full.String()
	if response != "" {
		conv.Append(RoleAssistant, response)
	}
	r.log.Debug("Turn complete", zap.Int("response_bytes", len(response)), zap.Bool("prompt_detected", detected))

	if !detected {
		r.metrics.Turns.WithLabelValues(metrics.TurnOK).Inc()
		return nil
	}

	match, ok := scanner.Result()
	if !ok {
		r.metrics.Turns.WithLabelValues(metrics.TurnOK).Inc()
		return nil
	}
	r.metrics.Directives.Inc()
	r.log.Info("Image directive detected", zap.String("payload", match.Payload))

	results := r.images.Run(ctx, match.Payload)
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, res := range results {
		ev := imageEvent(res.Content)
		if res.Err != nil {
			ev = aiEvent(imageErrorText(res, len(results)))
		}
		if err := sink.Send(ev); err != nil {
			return fmt.Errorf("could not send image result: %w: %w", errSendFailed, err)
		}
	}

	r.metrics.Turns.WithLabelValues(metrics.TurnOK).Inc()
	return nil
}

// upstreamFailed reports a failed completion to the client.
// Output already streamed is kept in history so it matches what the client saw.
func (r *turnRunner) upstreamFailed(ctx context.Context, conv *Conversation, sink Sink, partial string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.metrics.Turns.WithLabelValues(metrics.TurnUpstream).Inc()
	if partial != "" {
		conv.Append(RoleAssistant, partial)
	}

	if sendErr := sink.Send(aiEvent(genericError)); sendErr != nil {
		return fmt.Errorf("could not send error (%v): %w: %w", err, errSendFailed, sendErr)
	}
	return fmt.Errorf("completion failed: %w", err)
}

func imageErrorText(res imagegen.Result, total int) string {
	if total == 1 {
		return fmt.Sprintf("Sorry, I couldn't generate the image: %v", res.Err)
	}
	return fmt.Sprintf("Sorry, I couldn't generate image %d of %d: %v", res.Index+1, total, res.Err)
}
