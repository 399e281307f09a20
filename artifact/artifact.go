// Package artifact implements ArtifactStore: the policy that decides which
// large Parts of a ToolResponse get replaced by a content-addressed
// reference before they are journalled, and the store that holds the
// replaced bytes.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/distrihq/distri/blob"
	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/ids"
)

// Default thresholds from the store-decision policy.
const (
	DefaultTextThreshold   = 2 * 1024
	DefaultBinaryThreshold = 8 * 1024
	MaxPreviewLength       = 500
)

// Policy is how aggressively an agent wants parts wrapped into artifacts.
type Policy string

const (
	// PolicyThreshold stores a part only when it exceeds the configured
	// threshold for its kind.
	PolicyThreshold Policy = "threshold"
	// PolicyAlways stores every part regardless of size, except a part that
	// is already an artifact reference.
	PolicyAlways Policy = "always"
)

// PartKind identifies which size threshold applies to a candidate Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartData       PartKind = "data"
	PartImage      PartKind = "image"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartArtifact   PartKind = "artifact"
)

// Metadata is the durable record left in the journal in place of a large
// Part's raw content.
type Metadata struct {
	FileID       string
	RelativePath string
	Size         int64
	ContentType  string
	Preview      string
	CreatedAt    time.Time
}

// Store implements the addressing, store-decision policy, and read fallback
// described for ArtifactStore.
type Store struct {
	blobs blob.Store
}

// New builds an ArtifactStore over the given blob backend.
func New(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// ShouldStore reports whether a candidate part of the given kind and
// serialized size must be replaced by an Artifact reference under policy.
func ShouldStore(kind PartKind, size int, policy Policy) bool {
	if kind == PartArtifact {
		return false
	}
	if policy == PolicyAlways {
		return true
	}
	if kind == PartText {
		return size > DefaultTextThreshold
	}
	return size > DefaultBinaryThreshold
}

// namespace returns the directory under which artifacts for (threadID,
// taskID) are addressed: {thread_short}/{task_short}/content.
func namespace(threadID, taskID string) string {
	return fmt.Sprintf("%s/%s/content", ids.ShortHex(threadID), ids.ShortHex(taskID))
}

// extensionFor picks a filename extension from a content type.
func extensionFor(contentType string) string {
	switch contentType {
	case "application/json":
		return "json"
	case "text/plain":
		return "txt"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	default:
		return "bin"
	}
}

// Write commits data under the (threadID, taskID) namespace and returns its
// Metadata. The blob is fully committed before this call returns, satisfying
// the write-atomicity invariant that callers append Metadata to the journal
// only after Write succeeds.
func (s *Store) Write(ctx context.Context, threadID, taskID string, data []byte, contentType string) (Metadata, error) {
	fileID := uuid.NewString()
	filename := fmt.Sprintf("%s.%s", fileID, extensionFor(contentType))
	relPath := fmt.Sprintf("%s/%s", namespace(threadID, taskID), filename)

	if err := s.blobs.Put(ctx, relPath, bytes.NewReader(data), blob.PutOptions{ContentType: contentType}); err != nil {
		return Metadata{}, fmt.Errorf("artifact: write: %w", err)
	}

	preview := string(data)
	if len(preview) > MaxPreviewLength {
		preview = preview[:MaxPreviewLength]
	}
	return Metadata{
		FileID:       fileID,
		RelativePath: relPath,
		Size:         int64(len(data)),
		ContentType:  contentType,
		Preview:      preview,
		CreatedAt:    time.Now(),
	}, nil
}

// Read returns the blob at relativePath. When it is not found and
// parentTaskID is non-empty, Read retries the same file name under the
// parent task's namespace in the same thread. No thread-wide search is
// made: an artifact stored under any other task's namespace is not found.
func (s *Store) Read(ctx context.Context, threadID, taskID, parentTaskID, relativePath string) ([]byte, error) {
	r, err := s.blobs.Get(ctx, relativePath)
	if err == nil {
		defer r.Close()
		return io.ReadAll(r)
	}
	if parentTaskID == "" || !isNotFound(err) {
		return nil, err
	}
	// Fall back to the parent task's namespace: replace the task segment.
	parentPath := fmt.Sprintf("%s%s", namespace(threadID, parentTaskID), relativePath[len(namespace(threadID, taskID)):])
	r2, err2 := s.blobs.Get(ctx, parentPath)
	if err2 != nil {
		return nil, err
	}
	defer r2.Close()
	return io.ReadAll(r2)
}

// DeleteTaskNamespace recursively removes every artifact stored under a
// task's namespace.
func (s *Store) DeleteTaskNamespace(ctx context.Context, threadID, taskID string) error {
	return s.blobs.DeletePrefix(ctx, namespace(threadID, taskID))
}

func isNotFound(err error) bool {
	_, ok := err.(*distrierr.NotFound)
	return ok
}
