// Package directory maps API keys to registered agents.
//
// The directory is read-mostly: lookups happen on every API-key request,
// writes only on registration. State lives in process memory.
package directory

import (
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/pkg/models"
)

// APIKeyPrefix is the prefix of every generated API key.
const APIKeyPrefix = "key_"

// ErrNameRequired is returned when registering with a blank name.
var ErrNameRequired = errors.New("agentName is required")

// Registration is the result of Register.
type Registration struct {
	Record  models.AgentRecord
	Created bool
}

// MemoryDirectory is a thread-safe in-memory agent directory.
type MemoryDirectory struct {
	mu     sync.RWMutex
	byKey  map[string]*models.AgentRecord // key: api key
	byName map[string]*models.AgentRecord // key: lower-cased agent name
	clock  clock.Clock
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory(clk clock.Clock) *MemoryDirectory {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryDirectory{
		byKey:  make(map[string]*models.AgentRecord),
		byName: make(map[string]*models.AgentRecord),
		clock:  clk,
	}
}

// FindByAPIKey resolves an API key by exact match.
func (d *MemoryDirectory) FindByAPIKey(key string) (*models.AgentIdentity, bool) {
	if key == "" {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byKey[key]
	if !ok {
		return nil, false
	}
	id := rec.AgentIdentity
	return &id, true
}

// Register creates a probation agent, or returns the existing agent with
// the same name (case-insensitive).
func (d *MemoryDirectory) Register(name string) (Registration, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Registration{}, ErrNameRequired
	}
	norm := strings.ToLower(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byName[norm]; ok {
		return Registration{Record: *existing, Created: false}, nil
	}

	rec := &models.AgentRecord{
		AgentIdentity: models.AgentIdentity{
			AgentID:     "agent_" + uuid.NewString(),
			AgentName:   name,
			AgentStatus: models.AgentStatusProbation,
		},
		APIKey:    newAPIKey(),
		CreatedAt: d.clock.Now().UTC(),
	}
	d.byKey[rec.APIKey] = rec
	d.byName[norm] = rec

	log.Info().Str("agent_id", rec.AgentID).Str("agent_name", rec.AgentName).Msg("Agent registered")
	return Registration{Record: *rec, Created: true}, nil
}

// Seed inserts fixed records (e.g. the demo agent). Existing keys or names
// are left untouched.
func (d *MemoryDirectory) Seed(records ...models.AgentRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range records {
		rec := records[i]
		norm := strings.ToLower(rec.AgentName)
		if _, ok := d.byKey[rec.APIKey]; ok {
			continue
		}
		if _, ok := d.byName[norm]; ok {
			continue
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = d.clock.Now().UTC()
		}
		d.byKey[rec.APIKey] = &rec
		d.byName[norm] = &rec
	}
}

// Count returns the number of registered agents.
func (d *MemoryDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byKey)
}

// DemoAgent is the record seeded for local development.
func DemoAgent() models.AgentRecord {
	return models.AgentRecord{
		AgentIdentity: models.AgentIdentity{
			AgentID:     "demo-agent",
			AgentName:   "DemoAgent",
			AgentStatus: models.AgentStatusProbation,
		},
		APIKey: "demo-key-123",
	}
}

// newAPIKey builds an opaque key from two random (v4) UUIDs.
func newAPIKey() string {
	a, b := uuid.New(), uuid.New()
	return APIKeyPrefix + hex.EncodeToString(a[:]) + hex.EncodeToString(b[:8])
}
