package executor

import (
	"context"
	"encoding/json"

	"github.com/distrihq/distri/artifact"
	"github.com/distrihq/distri/model"
)

// partKindAndBytes classifies a Part for the store-decision policy and
// returns the bytes that would be written if it is stored.
func partKindAndBytes(p model.Part) (artifact.PartKind, []byte, string, error) {
	switch v := p.(type) {
	case model.TextPart:
		return artifact.PartText, []byte(v.Text), "text/plain", nil
	case model.DataPart:
		return artifact.PartData, v.Value, "application/json", nil
	case model.ImagePart:
		ct := v.ContentType
		if ct == "" {
			ct = "image/png"
		}
		return artifact.PartImage, v.Bytes, ct, nil
	case model.ToolCallPart:
		b, err := json.Marshal(v)
		return artifact.PartToolCall, b, "application/json", err
	case model.ToolResultPart:
		b, err := json.Marshal(v)
		return artifact.PartToolResult, b, "application/json", err
	case model.ArtifactPart:
		return artifact.PartArtifact, nil, "", nil
	default:
		b, err := json.Marshal(p)
		return artifact.PartData, b, "application/json", err
	}
}

// maybeStorePart applies the ArtifactStore's store-decision policy (§4.5) to
// a single part, replacing it with an ArtifactPart when it must be stored.
func (e *Executor) maybeStorePart(ctx context.Context, cfg AgentConfig, req RunRequest, p model.Part) (model.Part, error) {
	kind, data, contentType, err := partKindAndBytes(p)
	if err != nil {
		return nil, err
	}
	if kind == artifact.PartArtifact {
		return p, nil
	}
	if !artifact.ShouldStore(kind, len(data), cfg.ArtifactPolicy) {
		return p, nil
	}

	meta, err := e.artifacts.Write(ctx, req.ThreadID, req.TaskID, data, contentType)
	if err != nil {
		return nil, err
	}
	return model.ArtifactPart{
		FileID:      meta.FileID,
		RelPath:     meta.RelativePath,
		Size:        meta.Size,
		ContentType: meta.ContentType,
		Preview:     meta.Preview,
	}, nil
}
