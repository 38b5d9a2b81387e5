package epg

import (
	"encoding/json"
	"time"

	"github.com/channelcast/channelcast/internal/models"
)

// epgCacheRepository is the narrow slice of store.EPGCacheRepository this
// package depends on, kept as an interface so epg never imports the store
// package directly (same seam discipline as resolver.BucketLookup).
type epgCacheRepository interface {
	Get(channelID string) (xml, jsonBody string, expiresAt time.Time, ok bool)
	Put(channelID, xml, jsonBody string, ttl time.Duration) error
	Invalidate(channelID string) error
}

// StoreExternalCache adapts a store.EPGCacheRepository (XML+JSON text columns)
// to the Projector's ExternalCache interface ([]models.EPGProgram), storing
// the program list as JSON and regenerating XMLTV lazily on read.
type StoreExternalCache struct {
	repo epgCacheRepository
}

// NewStoreExternalCache wraps repo. repo is typically *store.EPGCacheRepository.
func NewStoreExternalCache(repo epgCacheRepository) *StoreExternalCache {
	return &StoreExternalCache{repo: repo}
}

func (c *StoreExternalCache) Get(channelID string) ([]models.EPGProgram, bool) {
	_, jsonBody, _, ok := c.repo.Get(channelID)
	if !ok || jsonBody == "" {
		return nil, false
	}
	var programs []models.EPGProgram
	if err := json.Unmarshal([]byte(jsonBody), &programs); err != nil {
		return nil, false
	}
	return programs, true
}

func (c *StoreExternalCache) Put(channelID string, programs []models.EPGProgram, ttl time.Duration) {
	data, err := json.Marshal(programs)
	if err != nil {
		return
	}
	xml, err := MarshalXMLTV(channelID, programs)
	if err != nil {
		xml = ""
	}
	_ = c.repo.Put(channelID, xml, string(data), ttl)
}

func (c *StoreExternalCache) Invalidate(channelID string) {
	_ = c.repo.Invalidate(channelID)
}
