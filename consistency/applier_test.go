package consistency

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BaSui01/visualflow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type failingBlobs struct{ err error }

func (f failingBlobs) GetObject(ctx context.Context, key string) ([]byte, error) { return nil, f.err }
func (f failingBlobs) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	return f.err
}

func savedState(t *testing.T, blobs *storage.MemoryStore) *VisualState {
	mgr := NewManager(nil)
	mgr.InitializeFromSession("Water Cycle", "8", "space")
	mgr.DefineCharacter("Drippy", "a blue water droplet with a smiling face")
	mgr.ApplyStyle("https://example.com/diagram.png", StyleAttributes{PrimaryColors: []string{"blue", "white"}})
	mgr.SetSeed(99)

	state := mgr.State()
	require.NoError(t, NewStateStore(blobs, nil).Save(context.Background(), "user-1", "session-1", &state))
	return &state
}

func TestStateStore_SaveLoad(t *testing.T) {
	blobs := storage.NewMemoryStore(nil)
	state := savedState(t, blobs)

	obj, err := blobs.GetObjectWithType(context.Background(), "users/user-1/session-1/visual_consistency_state.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", obj.ContentType)

	loaded, err := NewStateStore(blobs, nil).Load(context.Background(), "user-1", "session-1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestStateStore_LoadFailures(t *testing.T) {
	ctx := context.Background()
	blobs := storage.NewMemoryStore(nil)
	store := NewStateStore(blobs, nil)

	_, err := store.Load(ctx, "u", "missing")
	var loadErr *StateLoadFailure
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, "missing", loadOutcome(err))

	require.NoError(t, blobs.PutObject(ctx, StateKey("u", "corrupt"), []byte("{not json"), "application/json"))
	_, err = store.Load(ctx, "u", "corrupt")
	var malformedErr *MalformedStateError
	require.ErrorAs(t, err, &loadErr)
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, "malformed", loadOutcome(err))

	require.NoError(t, blobs.PutObject(ctx, StateKey("u", "partial"), []byte(`{"art_style": "x"}`), "application/json"))
	_, err = store.Load(ctx, "u", "partial")
	require.ErrorAs(t, err, &malformedErr)

	_, err = NewStateStore(failingBlobs{err: errors.New("connection reset")}, nil).Load(ctx, "u", "s")
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "error", loadOutcome(err))
}

func TestApplier_UninitializedReturnsBase(t *testing.T) {
	applier := NewApplier(NewStateStore(storage.NewMemoryStore(nil), nil), "u", "s", zaptest.NewLogger(t))

	assert.False(t, applier.Initialized())
	assert.Equal(t, "a plain prompt", applier.EnhancePrompt("a plain prompt", "hook"))
	assert.Nil(t, applier.Seed())
	assert.Nil(t, applier.ReferenceImageURL())
	assert.Nil(t, applier.ReferenceImageParams())
}

func TestApplier_InitializeLoadsPersistedState(t *testing.T) {
	blobs := storage.NewMemoryStore(nil)
	savedState(t, blobs)
	rec := newCountingRecorder()

	applier := NewApplier(NewStateStore(blobs, nil), "user-1", "session-1", zaptest.NewLogger(t),
		WithApplierRecorder(rec))
	require.True(t, applier.Initialize(context.Background()))
	assert.Equal(t, []string{"loaded"}, rec.loads)

	require.NotNil(t, applier.Seed())
	assert.Equal(t, int64(99), *applier.Seed())
	assert.Equal(t, "https://example.com/diagram.png", *applier.ReferenceImageURL())
	assert.Equal(t, ReferenceStyleWeight, applier.ReferenceImageParams().StyleWeight)

	first := applier.EnhancePrompt("Clouds gather", "hook")
	assert.Equal(t, "Clouds gather"+
		" Art style: colorful cartoon illustration, friendly characters."+
		" bright, warm lighting, engaging, space themed."+
		" Drippy: a blue water droplet with a smiling face."+
		" Setting: Scene related to Water Cycle."+
		" Smooth motion, cinematic camera movement."+
		" Color palette: blue, white."+
		" medium shot, eye level, centered, balanced.", first)

	second := applier.EnhancePrompt("Rain falls", "concept")
	assert.Contains(t, second, "Matching previous frame: Previous hook segment.")

	third := applier.EnhancePrompt("Rivers flow", "process")
	assert.Contains(t, third, "Matching previous frame: Previous concept segment.")
	assert.Equal(t, 1, rec.enhancements["process"])
}

func TestApplier_InitializeFallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name    string
		loader  StateLoader
		outcome string
	}{
		{"missing", NewStateStore(storage.NewMemoryStore(nil), nil), "missing"},
		{"storage error", NewStateStore(failingBlobs{err: errors.New("timeout")}, nil), "error"},
		{"no loader", nil, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newCountingRecorder()
			applier := NewApplier(tt.loader, "u", "s", zaptest.NewLogger(t), WithApplierRecorder(rec))

			assert.False(t, applier.Initialize(context.Background()))
			assert.True(t, applier.Initialized())
			assert.Equal(t, []string{tt.outcome}, rec.loads)

			p := applier.EnhancePrompt("Base", "hook")
			assert.Equal(t, "Base Art style: hand-drawn cartoon illustration."+
				" bright, warm lighting, cheerful, educational."+
				" Smooth motion, cinematic camera movement."+
				" medium shot, eye level, centered, balanced.", p)
			assert.Nil(t, applier.Seed())
		})
	}
}

func TestApplier_InvalidSegmentReturnsBase(t *testing.T) {
	applier := NewApplier(nil, "u", "s", zaptest.NewLogger(t))
	applier.Initialize(context.Background())

	assert.Equal(t, "Base", applier.EnhancePrompt("Base", "outro"))

	// 无效分段不推进 previous scene
	p := applier.EnhancePrompt("Next", "concept")
	assert.NotContains(t, p, "Matching previous frame")
}

func TestApplier_EnhanceAll(t *testing.T) {
	blobs := storage.NewMemoryStore(nil)
	savedState(t, blobs)
	applier := NewApplier(NewStateStore(blobs, nil), "user-1", "session-1", nil)

	out := applier.EnhanceAll(context.Background(), []SegmentPrompt{
		{Segment: "hook", Prompt: "A"},
		{Segment: "concept", Prompt: "B"},
		{Segment: "process", Prompt: "C"},
		{Segment: "conclusion", Prompt: "D"},
	})

	require.Len(t, out, 4)
	assert.Equal(t, "hook", out[0].Segment)
	assert.NotContains(t, out[0].Prompt, "Matching previous frame")
	assert.Contains(t, out[1].Prompt, "Matching previous frame: Previous hook segment.")
	assert.Contains(t, out[2].Prompt, "Matching previous frame: Previous concept segment.")
	assert.Contains(t, out[3].Prompt, "Matching previous frame: Previous process segment.")
}

func TestApplier_ConcurrentEnhance(t *testing.T) {
	applier := NewApplier(nil, "u", "s", nil)
	applier.Initialize(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seg := Segments[i%len(Segments)]
			p := applier.EnhancePrompt("Base", string(seg))
			assert.Contains(t, p, "Base Art style:")
		}(i)
	}
	wg.Wait()
}
