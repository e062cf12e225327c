package universe

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorelab/sore/internal/database"
	"github.com/sorelab/sore/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "universe.db"),
		Profile: database.ProfileDurable,
		Name:    "universe",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	em := events.NewManager(events.NewBus(), zerolog.Nop())
	store, err := New(context.Background(), db, em, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestNew_SeedsDefaultSymbols(t *testing.T) {
	store := newTestStore(t)
	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSymbols, list)
}

func TestAdd_AppendsInOrderAndIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "vxx"))
	require.NoError(t, store.Add(ctx, "VXX"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, append(append([]string{}, DefaultSymbols...), "VXX"), list)
}

func TestAdd_RejectsInvalidSymbol(t *testing.T) {
	store := newTestStore(t)
	err := store.Add(context.Background(), "not-a-ticker!!")
	require.Error(t, err)
	var invalid *ErrInvalidSymbol
	assert.ErrorAs(t, err, &invalid)
}

func TestRemove_DropsSymbol(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Remove(ctx, "QQQ"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, list, "QQQ")
}

func TestReset_RestoresDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "VXX"))
	require.NoError(t, store.Reset(ctx))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSymbols, list)
}

func TestSubscribe_ReceivesAddAndRemoveEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var seen []events.Type
	unsubscribe := store.Subscribe(func(ev events.Event) { seen = append(seen, ev.Type) })
	defer unsubscribe()

	require.NoError(t, store.Add(ctx, "VXX"))
	require.NoError(t, store.Remove(ctx, "VXX"))

	assert.Equal(t, []events.Type{events.SymbolAdded, events.SymbolRemoved}, seen)
}
