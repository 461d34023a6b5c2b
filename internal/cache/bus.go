package cache

import (
	"sync"

	"go.uber.org/fx"
)

// Key builders for the invalidation signals the core emits. The cache
// layer downstream of this core keys its entries the same way.

func AccountSummaryKey(advertiserID string) string { return "account-settings:" + advertiserID }
func CampaignKey(campaignID string) string         { return "campaign:" + campaignID }
func PartnerDevicesKey(partnerID string) string    { return "partner:devices:" + partnerID }
func PartnerEarningsKey(partnerID string) string   { return "partner:earnings:" + partnerID }

// Invalidator receives the key of every successful core mutation.
type Invalidator interface {
	Invalidate(key string)
}

// Bus fans an invalidation key out to every subscribed listener. The
// in-process summary caches subscribe to it; an external cache layer can
// subscribe a forwarder.
type Bus struct {
	mu   sync.RWMutex
	subs []func(key string)
}

// NewBus constructs an empty invalidation bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener for invalidation keys.
func (b *Bus) Subscribe(fn func(key string)) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Invalidate delivers a key to all listeners synchronously.
func (b *Bus) Invalidate(key string) {
	if b == nil || key == "" {
		return
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(key)
	}
}

// Module provides the shared invalidation bus.
var Module = fx.Module("cache",
	fx.Provide(NewBus),
	fx.Provide(func(b *Bus) Invalidator { return b }),
)
