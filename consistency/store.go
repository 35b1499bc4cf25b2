package consistency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/visualflow/storage"
	"go.uber.org/zap"
)

// StateFileName is the object name of a persisted visual state.
const StateFileName = "visual_consistency_state.json"

// BlobStore is the subset of storage.ObjectStore the state store needs.
type BlobStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// StateKey returns the object key of a session's visual state.
func StateKey(userID, sessionID string) string {
	return storage.SessionKey(userID, sessionID, StateFileName)
}

// StateStore persists visual states, one JSON object per session.
type StateStore struct {
	blobs  BlobStore
	logger *zap.Logger
}

// NewStateStore creates a StateStore.
func NewStateStore(blobs BlobStore, logger *zap.Logger) *StateStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{
		blobs:  blobs,
		logger: logger.With(zap.String("component", "state_store")),
	}
}

// Save replaces the persisted state of a session.
func (s *StateStore) Save(ctx context.Context, userID, sessionID string, state *VisualState) error {
	if state == nil {
		return errors.New("visual state is nil")
	}
	data, err := json.MarshalIndent(state.ToSnapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal visual state: %w", err)
	}

	key := StateKey(userID, sessionID)
	if err := s.blobs.PutObject(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("save visual state %s: %w", key, err)
	}

	s.logger.Debug("saved visual state", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Load reads and validates the persisted state of a session. Every failure is
// returned as a *StateLoadFailure; schema violations also match
// *MalformedStateError and a missing object matches storage.ErrNotFound.
func (s *StateStore) Load(ctx context.Context, userID, sessionID string) (*VisualState, error) {
	key := StateKey(userID, sessionID)

	data, err := s.blobs.GetObject(ctx, key)
	if err != nil {
		return nil, &StateLoadFailure{Key: key, Err: err}
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, &StateLoadFailure{Key: key, Err: err}
	}
	state, err := FromSnapshot(snap)
	if err != nil {
		return nil, &StateLoadFailure{Key: key, Err: err}
	}
	return state, nil
}

// loadOutcome classifies a Load error for metrics.
func loadOutcome(err error) string {
	var malformedErr *MalformedStateError
	switch {
	case err == nil:
		return "loaded"
	case errors.Is(err, storage.ErrNotFound):
		return "missing"
	case errors.As(err, &malformedErr):
		return "malformed"
	default:
		return "error"
	}
}
