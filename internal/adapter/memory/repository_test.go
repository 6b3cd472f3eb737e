package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTown(name string, updated int64) domain.Town {
	return domain.Town{
		Name:        name,
		NameLower:   domain.NormalizeKey(name),
		Owner:       "Notch",
		Members:     []string{"Notch"},
		Resources:   []string{},
		Trusted:     []string{},
		LastUpdated: updated,
	}
}

func TestRepository_LatestWins(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	older := testTown("Astarte", 100)
	newer := testTown("Astarte", 200)
	newer.Owner = "jeb_"

	require.NoError(t, repo.Put(ctx, newer))
	require.NoError(t, repo.Put(ctx, older))

	got, err := repo.GetLatest(ctx, "astarte")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jeb_", got.Owner)
	assert.Equal(t, int64(200), got.LastUpdated)
}

func TestRepository_TieGoesToLaterWrite(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	first := testTown("Astarte", 100)
	second := testTown("Astarte", 100)
	second.Owner = "Dinnerbone"

	require.NoError(t, repo.Put(ctx, first))
	require.NoError(t, repo.Put(ctx, second))

	got, err := repo.GetLatest(ctx, "astarte")
	require.NoError(t, err)
	assert.Equal(t, "Dinnerbone", got.Owner)
}

func TestRepository_GetLatestMissing(t *testing.T) {
	got, err := NewRepository().GetLatest(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_GetLatestNormalizesKey(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	require.NoError(t, repo.Put(ctx, testTown("New_York", 1)))

	got, err := repo.GetLatest(ctx, "New_York")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "New_York", got.Name)
}

func TestRepository_RejectsInvalid(t *testing.T) {
	err := NewRepository().Put(context.Background(), domain.Town{Name: "Astarte", NameLower: "ASTARTE"})
	require.Error(t, err)
	assert.True(t, domain.IsTransientPersistence(err))
}

func TestRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	town := testTown("Astarte", 1)
	require.NoError(t, repo.Put(ctx, town))

	town.Members[0] = "mutated"
	got, err := repo.GetLatest(ctx, "astarte")
	require.NoError(t, err)
	assert.Equal(t, []string{"Notch"}, got.Members)
}

func TestRepository_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Put(ctx, testTown("Astarte", i)))
		}()
	}
	wg.Wait()

	got, err := repo.GetLatest(ctx, "astarte")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.LastUpdated)
	assert.Equal(t, 1, repo.Len())
}
