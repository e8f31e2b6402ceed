// Package realtime はルーム単位の写真変更通知を配信する。
//
// 変更の検知はPostgreSQLのLISTEN/NOTIFY（PostgresListener）が担い、
// Brokerが同一プロセス内の購読者へファンアウトする。
package realtime

import (
	"sync"

	"github.com/hitoshi/photoroom/internal/metrics"
)

// Publisher は変更通知の発行側インターフェース。
type Publisher interface {
	Publish(roomCode string)
	PublishAll()
}

// Broker はルームコードごとの購読者に変更を通知する。
// 通知関数はBrokerのロック外で同期的に呼ばれるため、ブロックしてはならない。
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]func()
	nextID  uint64
	metrics metrics.MetricsCollector
}

// NewBroker はBrokerの新しいインスタンスを生成する。
func NewBroker(mc metrics.MetricsCollector) *Broker {
	return &Broker{
		subs:    make(map[string]map[uint64]func()),
		metrics: mc,
	}
}

// Subscribe はroomCodeの変更時にnotifyを呼ぶよう登録し、解除関数を返す。
// 解除関数は何度呼んでもよい。
func (b *Broker) Subscribe(roomCode string, notify func()) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[roomCode] == nil {
		b.subs[roomCode] = make(map[uint64]func())
	}
	b.subs[roomCode][id] = notify
	b.mu.Unlock()

	b.metrics.AddLiveSubscriptions(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[roomCode]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, roomCode)
				}
			}
			b.mu.Unlock()
			b.metrics.AddLiveSubscriptions(-1)
		})
	}
}

// Publish はroomCodeの全購読者に通知する。
func (b *Broker) Publish(roomCode string) {
	b.mu.RLock()
	notifiers := make([]func(), 0, len(b.subs[roomCode]))
	for _, fn := range b.subs[roomCode] {
		notifiers = append(notifiers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range notifiers {
		fn()
	}
}

// PublishAll は全ルームの購読者に通知する。
// LISTEN接続の再接続後など、取りこぼした変更がありうる場合に使う。
func (b *Broker) PublishAll() {
	b.mu.RLock()
	var notifiers []func()
	for _, subs := range b.subs {
		for _, fn := range subs {
			notifiers = append(notifiers, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range notifiers {
		fn()
	}
}

// Subscribers はroomCodeの現在の購読者数を返す。
func (b *Broker) Subscribers(roomCode string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roomCode])
}

var _ Publisher = (*Broker)(nil)
