package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RelayChannel канал Redis Pub/Sub, через который экземпляры сервиса обмениваются событиями.
const RelayChannel = "helpqueue:events"

type relayMessage struct {
	Origin  string `json:"origin"`
	Subject string `json:"subject"`
	Kind    string `json:"kind"`
}

// Relay доставляет события локальному Hub и остальным экземплярам через Redis.
// Собственные сообщения, вернувшиеся из Redis, отбрасываются по origin.
type Relay struct {
	hub    *Hub
	rdb    *redis.Client
	origin string
	out    chan relayMessage
}

func NewRelay(hub *Hub, rdb *redis.Client, buffer int) *Relay {
	if buffer < 1 {
		buffer = 1
	}
	return &Relay{hub: hub, rdb: rdb, origin: uuid.NewString(), out: make(chan relayMessage, buffer)}
}

// Publish никогда не блокирует вызывающего: в Redis события уходят из Run,
// при переполнении очереди отправки событие для других экземпляров теряется.
func (r *Relay) Publish(subject, kind string) {
	r.hub.Publish(subject, kind)
	select {
	case r.out <- relayMessage{Origin: r.origin, Subject: subject, Kind: kind}:
	default:
		log.Printf("Очередь отправки в Redis переполнена, событие %s/%s отброшено", subject, kind)
	}
}

// Run отправляет локальные события в Redis и пересылает события других экземпляров
// в локальный Hub до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	go r.send(ctx)

	pubsub := r.rdb.Subscribe(ctx, RelayChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Printf("Некорректное сообщение в %s: %v", RelayChannel, err)
				continue
			}
			if m.Origin == r.origin {
				continue
			}
			r.hub.Publish(m.Subject, m.Kind)
		}
	}
}

func (r *Relay) send(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-r.out:
			payload, err := json.Marshal(m)
			if err != nil {
				continue
			}
			if err := r.rdb.Publish(ctx, RelayChannel, payload).Err(); err != nil {
				log.Printf("Ошибка публикации события %s/%s в Redis: %v", m.Subject, m.Kind, err)
			}
		}
	}
}
