package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moltboard/platform/internal/ratelimit"
	"github.com/moltboard/platform/pkg/models"
)

// QuotaFile is the YAML shape of MOLTBOARD_QUOTA_FILE:
//
//	window: 1h
//	quotas:
//	  probation:
//	    post_message: 5
//	  full:
//	    read: 1000
//
// Entries not listed keep their current value.
type QuotaFile struct {
	Window time.Duration                                `yaml:"window"`
	Quotas map[models.AgentStatus]map[models.Action]int `yaml:"quotas"`
}

// LoadQuotaFile reads and validates a quota file.
func LoadQuotaFile(path string) (*QuotaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota file: %w", err)
	}
	return ParseQuotaFile(data)
}

// ParseQuotaFile decodes YAML, rejecting unknown keys, tiers and actions.
func ParseQuotaFile(data []byte) (*QuotaFile, error) {
	var qf QuotaFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&qf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse quota file: %w", err)
	}

	for tier, actions := range qf.Quotas {
		if !tier.Valid() {
			return nil, fmt.Errorf("quota file: unknown tier %q", tier)
		}
		for action, limit := range actions {
			if !action.Valid() {
				return nil, fmt.Errorf("quota file: unknown action %q for tier %s", action, tier)
			}
			if limit < 0 {
				return nil, fmt.Errorf("quota file: negative limit %d for %s/%s", limit, tier, action)
			}
		}
	}
	if qf.Window < 0 {
		return nil, fmt.Errorf("quota file: negative window %s", qf.Window)
	}
	return &qf, nil
}

// MergeInto overlays the file's entries on q.
func (qf *QuotaFile) MergeInto(q ratelimit.Quotas) {
	for tier, actions := range qf.Quotas {
		for action, limit := range actions {
			q.Set(tier, action, limit)
		}
	}
}
