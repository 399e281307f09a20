package model

import (
	"encoding/json"
	"fmt"
)

// partKind discriminates a Part's concrete type in its wire encoding.
type partKind string

const (
	kindText       partKind = "text"
	kindData       partKind = "data"
	kindImage      partKind = "image"
	kindToolCall   partKind = "tool_call"
	kindToolResult partKind = "tool_result"
	kindArtifact   partKind = "artifact"
)

// wirePart is the tagged-union JSON shape every Part round-trips through.
// ToolResult nests its own Parts recursively through the same envelope.
type wirePart struct {
	Kind partKind `json:"kind"`

	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`

	URL         string `json:"url,omitempty"`
	Bytes       []byte `json:"bytes,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`

	Parts []wirePart `json:"parts,omitempty"`

	FileID  string `json:"file_id,omitempty"`
	RelPath string `json:"rel_path,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Preview string `json:"preview,omitempty"`
}

func toWire(p Part) (wirePart, error) {
	switch v := p.(type) {
	case TextPart:
		return wirePart{Kind: kindText, Text: v.Text}, nil
	case DataPart:
		return wirePart{Kind: kindData, Data: v.Value}, nil
	case ImagePart:
		return wirePart{Kind: kindImage, URL: v.URL, Bytes: v.Bytes, ContentType: v.ContentType}, nil
	case ToolCallPart:
		return wirePart{Kind: kindToolCall, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Input: v.Input}, nil
	case ToolResultPart:
		nested := make([]wirePart, 0, len(v.Parts))
		for _, np := range v.Parts {
			w, err := toWire(np)
			if err != nil {
				return wirePart{}, err
			}
			nested = append(nested, w)
		}
		return wirePart{Kind: kindToolResult, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Parts: nested}, nil
	case ArtifactPart:
		return wirePart{Kind: kindArtifact, FileID: v.FileID, RelPath: v.RelPath, Size: v.Size, ContentType: v.ContentType, Preview: v.Preview}, nil
	default:
		return wirePart{}, fmt.Errorf("model: unsupported part type %T", p)
	}
}

func fromWire(w wirePart) (Part, error) {
	switch w.Kind {
	case kindText:
		return TextPart{Text: w.Text}, nil
	case kindData:
		return DataPart{Value: w.Data}, nil
	case kindImage:
		return ImagePart{URL: w.URL, Bytes: w.Bytes, ContentType: w.ContentType}, nil
	case kindToolCall:
		return ToolCallPart{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Input: w.Input}, nil
	case kindToolResult:
		parts := make([]Part, 0, len(w.Parts))
		for _, np := range w.Parts {
			p, err := fromWire(np)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		return ToolResultPart{ToolCallID: w.ToolCallID, ToolName: w.ToolName, Parts: parts}, nil
	case kindArtifact:
		return ArtifactPart{FileID: w.FileID, RelPath: w.RelPath, Size: w.Size, ContentType: w.ContentType, Preview: w.Preview}, nil
	default:
		return nil, fmt.Errorf("model: unknown part kind %q", w.Kind)
	}
}

// EncodePart marshals a single Part to its tagged-union wire form.
func EncodePart(p Part) (json.RawMessage, error) {
	w, err := toWire(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodePart unmarshals a single Part from its tagged-union wire form.
func DecodePart(raw json.RawMessage) (Part, error) {
	var w wirePart
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

// EncodeParts marshals a Part slice to its tagged-union wire form, used to
// persist ToolResultPart.Parts (and journal Observation payloads) with type
// fidelity.
func EncodeParts(parts []Part) (json.RawMessage, error) {
	wire := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		w, err := toWire(p)
		if err != nil {
			return nil, err
		}
		wire = append(wire, w)
	}
	return json.Marshal(wire)
}

// DecodeParts unmarshals a Part slice from its tagged-union wire form.
func DecodeParts(raw json.RawMessage) ([]Part, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wire []wirePart
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	parts := make([]Part, 0, len(wire))
	for _, w := range wire {
		p, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}
