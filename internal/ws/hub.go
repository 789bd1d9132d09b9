package ws

import (
	"log"
	"sync"
	"sync/atomic"
)

// Event уведомляет зрителей предмета, что состояние изменилось. Полезной нагрузки нет:
// клиент перечитывает очередь или список объявлений.
type Event struct {
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
}

// Hub хранит подписчиков, сгруппированных по коду предмета.
type Hub struct {
	mu     sync.RWMutex
	buffer int
	subs   map[string]map[*Subscription]struct{}
}

// Subscription это один зритель. C закрывается после Close.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	subject string
	hub     *Hub
	once    sync.Once
	dropped atomic.Int64
}

// NewHub создает Hub; buffer ограничивает очередь событий каждого подписчика.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe регистрирует нового зрителя предмета.
func (h *Hub) Subscribe(subject string) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, subject: subject, hub: h}

	h.mu.Lock()
	if h.subs[subject] == nil {
		h.subs[subject] = make(map[*Subscription]struct{})
	}
	h.subs[subject][s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe удаляет зрителя и закрывает его канал. Повторный вызов безопасен.
func (h *Hub) Unsubscribe(s *Subscription) {
	s.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.subs[s.subject]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.subject)
			}
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Publish рассылает событие всем зрителям предмета и никогда не блокируется:
// если буфер подписчика полон, событие для него отбрасывается.
func (h *Hub) Publish(subject, kind string) {
	ev := Event{Subject: subject, Kind: kind}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[subject] {
		select {
		case s.ch <- ev:
		default:
			n := s.dropped.Add(1)
			log.Printf("Подписчик %s не успевает, событие %s отброшено (всего %d)", subject, kind, n)
		}
	}
}

// Subscribers возвращает число зрителей предмета.
func (h *Hub) Subscribers(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[subject])
}

func (s *Subscription) Subject() string { return s.subject }

// Dropped возвращает число отброшенных для этого зрителя событий.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) Close() { s.hub.Unsubscribe(s) }
