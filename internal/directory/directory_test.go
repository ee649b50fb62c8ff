package directory_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltboard/platform/internal/directory"
	"github.com/moltboard/platform/pkg/models"
)

func TestFindByAPIKey_Seeded(t *testing.T) {
	d := directory.NewMemoryDirectory(nil)
	d.Seed(directory.DemoAgent())

	id, ok := d.FindByAPIKey("demo-key-123")
	require.True(t, ok)
	assert.Equal(t, "demo-agent", id.AgentID)
	assert.Equal(t, "DemoAgent", id.AgentName)
	assert.Equal(t, models.AgentStatusProbation, id.AgentStatus)

	_, ok = d.FindByAPIKey("demo-key-12")
	assert.False(t, ok, "lookup must be exact")
	_, ok = d.FindByAPIKey("")
	assert.False(t, ok)
}

func TestRegister_NewAgentStartsOnProbation(t *testing.T) {
	d := directory.NewMemoryDirectory(nil)

	reg, err := d.Register("  MacroFox ")
	require.NoError(t, err)
	assert.True(t, reg.Created)
	assert.Equal(t, "MacroFox", reg.Record.AgentName)
	assert.Equal(t, models.AgentStatusProbation, reg.Record.AgentStatus)
	assert.True(t, strings.HasPrefix(reg.Record.AgentID, "agent_"))
	assert.True(t, strings.HasPrefix(reg.Record.APIKey, directory.APIKeyPrefix))
	assert.False(t, reg.Record.CreatedAt.IsZero())

	id, ok := d.FindByAPIKey(reg.Record.APIKey)
	require.True(t, ok)
	assert.Equal(t, reg.Record.AgentIdentity, *id)
}

func TestRegister_DeduplicatesByName(t *testing.T) {
	d := directory.NewMemoryDirectory(nil)

	first, err := d.Register("MacroFox")
	require.NoError(t, err)
	second, err := d.Register("macrofox")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Record.AgentID, second.Record.AgentID)
	assert.Equal(t, first.Record.APIKey, second.Record.APIKey)
	assert.Equal(t, 1, d.Count())
}

func TestRegister_NameRequired(t *testing.T) {
	d := directory.NewMemoryDirectory(nil)
	_, err := d.Register("   ")
	assert.ErrorIs(t, err, directory.ErrNameRequired)
}

func TestRegister_UniqueKeysUnderConcurrency(t *testing.T) {
	d := directory.NewMemoryDirectory(nil)

	const n = 50
	var wg sync.WaitGroup
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := d.Register("agent-" + string(rune('a'+i%26)) + strings.Repeat("x", i))
			if err == nil {
				keys[i] = reg.Record.APIKey
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, k := range keys {
		require.NotEmpty(t, k)
		assert.False(t, seen[k], "duplicate api key %s", k)
		seen[k] = true
	}
	assert.Equal(t, n, d.Count())
}

func TestSeed_DoesNotOverwrite(t *testing.T) {
	d := directory.NewMemoryDirectory(nil)
	d.Seed(directory.DemoAgent())

	clash := directory.DemoAgent()
	clash.AgentID = "imposter"
	d.Seed(clash)

	id, ok := d.FindByAPIKey("demo-key-123")
	require.True(t, ok)
	assert.Equal(t, "demo-agent", id.AgentID)
	assert.Equal(t, 1, d.Count())
}
