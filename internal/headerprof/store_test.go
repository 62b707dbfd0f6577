package headerprof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	profile := profileFixture().Profiles["api.example.com"]

	require.NoError(t, store.Save(profile))

	loaded, err := store.Load("api.example.com")
	require.NoError(t, err)
	assert.Equal(t, profile.Domain, loaded.Domain)
	assert.Equal(t, profile.CommonHeaders, loaded.CommonHeaders)
	assert.Equal(t, profile.RequestCount, loaded.RequestCount)

	domains, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"api.example.com"}, domains)
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("nowhere.example.com")
	require.Error(t, err)
	assert.Equal(t, fault.CodeNotFound, fault.CodeOf(err))
}

func TestStoreListEmptyDir(t *testing.T) {
	store := NewStore(t.TempDir() + "/never-created")
	domains, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestStoreRejectsEmptyDomain(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.Save(&types.HeaderProfile{})
	assert.Equal(t, fault.CodeInput, fault.CodeOf(err))
}
