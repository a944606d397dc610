package identity

import (
	"context"
	"sync"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
)

type linkKey struct {
	platform       string
	platformUserID string
}

// MemoryLinkStore keeps identity links in process memory.
type MemoryLinkStore struct {
	mutex sync.RWMutex
	links map[linkKey]Link
}

// NewMemoryLinkStore returns an empty MemoryLinkStore.
func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{links: make(map[linkKey]Link)}
}

func (store *MemoryLinkStore) FindIdentityLink(_ context.Context, platform ledger.SourcePlatform, platformUserID string) (ledger.AccountID, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	link, found := store.links[linkKey{platform: platform.String(), platformUserID: platformUserID}]
	return link.AccountID, found, nil
}

func (store *MemoryLinkStore) InsertIdentityLink(_ context.Context, link Link) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := linkKey{platform: link.Platform.String(), platformUserID: link.PlatformUserID}
	if _, exists := store.links[key]; exists {
		return ErrLinkExists
	}
	store.links[key] = link
	return nil
}
