package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const roomChannelPrefix = "room:"

// RelayEnvelope is what travels between instances on a room channel.
type RelayEnvelope struct {
	Origin string `msgpack:"o"`
	Frame  []byte `msgpack:"f"`
}

// RoomRelay fans room frames out to every server instance through Redis pub/sub.
type RoomRelay struct {
	redis    *RedisCache
	instance string
}

func NewRoomRelay(redis *RedisCache, instanceID string) *RoomRelay {
	return &RoomRelay{redis: redis, instance: instanceID}
}

func roomChannel(conversationID uint) string {
	return roomChannelPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

func parseRoomChannel(channel string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(channel, roomChannelPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad room channel %q: %w", channel, err)
	}
	return uint(id), nil
}

func EncodeEnvelope(origin string, frame []byte) ([]byte, error) {
	return msgpack.Marshal(&RelayEnvelope{Origin: origin, Frame: frame})
}

func DecodeEnvelope(data []byte) (*RelayEnvelope, error) {
	var env RelayEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Publish sends an already-serialized frame to the other instances.
func (r *RoomRelay) Publish(ctx context.Context, conversationID uint, frame []byte) error {
	if r == nil || r.redis == nil {
		return nil
	}
	data, err := EncodeEnvelope(r.instance, frame)
	if err != nil {
		return err
	}
	return r.redis.Publish(ctx, roomChannel(conversationID), data)
}

// Run delivers frames published by other instances until ctx is cancelled.
func (r *RoomRelay) Run(ctx context.Context, deliver func(conversationID uint, frame []byte)) {
	if r == nil || r.redis == nil {
		return
	}
	sub := r.redis.PSubscribe(ctx, roomChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				zap.L().Warn("relay: undecodable frame", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.Origin == r.instance {
				continue
			}
			conversationID, err := parseRoomChannel(msg.Channel)
			if err != nil {
				zap.L().Warn("relay: bad channel", zap.Error(err))
				continue
			}
			deliver(conversationID, env.Frame)
		}
	}
}
