package bedrock

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/distrihq/distri/model"
)

// streamer adapts a Bedrock ConverseStream event stream to model.Streamer.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream

	chunks chan model.Chunk

	errMu    sync.Mutex
	errSet   bool
	finalErr error

	nameMap map[string]string
}

func newStreamer(ctx context.Context, stream *bedrockruntime.ConverseStreamEventStream, nameMap map[string]string) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, stream: stream, chunks: make(chan model.Chunk, 32), nameMap: nameMap}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	return s.stream.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() { _ = s.stream.Close() }()

	toolBlocks := make(map[int32]*toolBuffer)
	events := s.stream.Events()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		case event, ok := <-events:
			if !ok {
				if err := s.stream.Err(); err != nil {
					s.setErr(err)
				} else {
					s.setErr(nil)
				}
				return
			}
			if !s.handle(event, toolBlocks) {
				return
			}
		}
	}
}

func (s *streamer) handle(event any, toolBlocks map[int32]*toolBuffer) bool {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberMessageStart:
		for k := range toolBlocks {
			delete(toolBlocks, k)
		}
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := ev.Value.ContentBlockIndex
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			tb := &toolBuffer{}
			if start.Value.ToolUseId != nil {
				tb.id = *start.Value.ToolUseId
			}
			if start.Value.Name != nil {
				if canonical, ok := s.nameMap[*start.Value.Name]; ok {
					tb.name = canonical
				} else {
					tb.name = *start.Value.Name
				}
			}
			toolBlocks[idx] = tb
		}
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := ev.Value.ContentBlockIndex
		switch delta := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if delta.Value == "" {
				return true
			}
			return s.emit(model.Chunk{Type: model.ChunkTypeText, TextDelta: delta.Value})
		case *brtypes.ContentBlockDeltaMemberToolUse:
			if tb := toolBlocks[idx]; tb != nil && delta.Value.Input != nil {
				tb.fragments = append(tb.fragments, *delta.Value.Input)
			}
		}
	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := ev.Value.ContentBlockIndex
		if tb := toolBlocks[idx]; tb != nil {
			delete(toolBlocks, idx)
			tc := model.ToolCallPart{ToolCallID: tb.id, ToolName: tb.name, Input: tb.finalInput()}
			return s.emit(model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &tc})
		}
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage != nil {
			usage := model.TokenUsage{
				InputTokens:  int(ptrValue(ev.Value.Usage.InputTokens)),
				OutputTokens: int(ptrValue(ev.Value.Usage.OutputTokens)),
				TotalTokens:  int(ptrValue(ev.Value.Usage.TotalTokens)),
			}
			return s.emit(model.Chunk{Type: model.ChunkTypeUsage, UsageDelta: &usage})
		}
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return s.emit(model.Chunk{Type: model.ChunkTypeStop, StopReason: string(ev.Value.StopReason)})
	}
	return true
}

func (s *streamer) emit(chunk model.Chunk) bool {
	select {
	case <-s.ctx.Done():
		return false
	case s.chunks <- chunk:
		return true
	}
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *streamer) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.finalErr
}

type toolBuffer struct {
	name      string
	id        string
	fragments []string
}

func (tb *toolBuffer) finalInput() json.RawMessage {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		joined = "{}"
	}
	return json.RawMessage(joined)
}
