// Package memory provides an in-process CacheStore used by tests and local
// development. It mirrors the command semantics of the Redis adapter closely
// enough for the application services to be exercised without a server.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/guxdde/base-auth-service/internal/domain"
)

type zsetMember struct {
	member string
	score  float64
}

// CacheStore is a mutex-guarded in-memory key-value store. The clock is
// injectable so tests can drive TTL expiry deterministically.
type CacheStore struct {
	mu sync.Mutex

	strings map[string]string
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	hashes  map[string]map[string]string
	streams map[string][]domain.StreamMessage

	expiries map[string]time.Time
	streamID int64

	now func() time.Time
}

// NewCacheStore creates an empty store using the wall clock.
func NewCacheStore() *CacheStore {
	return NewCacheStoreWithClock(time.Now)
}

// NewCacheStoreWithClock creates an empty store with an injected clock.
func NewCacheStoreWithClock(now func() time.Time) *CacheStore {
	return &CacheStore{
		strings:  make(map[string]string),
		lists:    make(map[string][]string),
		sets:     make(map[string]map[string]struct{}),
		zsets:    make(map[string]map[string]float64),
		hashes:   make(map[string]map[string]string),
		streams:  make(map[string][]domain.StreamMessage),
		expiries: make(map[string]time.Time),
		now:      now,
	}
}

// purge removes the key if its TTL has elapsed. Caller holds the lock.
func (s *CacheStore) purge(key string) {
	deadline, ok := s.expiries[key]
	if !ok || s.now().Before(deadline) {
		return
	}
	s.deleteKey(key)
}

// deleteKey removes the key from every namespace. Caller holds the lock.
func (s *CacheStore) deleteKey(key string) bool {
	existed := false
	if _, ok := s.strings[key]; ok {
		delete(s.strings, key)
		existed = true
	}
	if _, ok := s.lists[key]; ok {
		delete(s.lists, key)
		existed = true
	}
	if _, ok := s.sets[key]; ok {
		delete(s.sets, key)
		existed = true
	}
	if _, ok := s.zsets[key]; ok {
		delete(s.zsets, key)
		existed = true
	}
	if _, ok := s.hashes[key]; ok {
		delete(s.hashes, key)
		existed = true
	}
	if _, ok := s.streams[key]; ok {
		delete(s.streams, key)
		existed = true
	}
	delete(s.expiries, key)
	return existed
}

func (s *CacheStore) keyExists(key string) bool {
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.lists[key]; ok {
		return true
	}
	if _, ok := s.sets[key]; ok {
		return true
	}
	if _, ok := s.zsets[key]; ok {
		return true
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	if _, ok := s.streams[key]; ok {
		return true
	}
	return false
}

func (s *CacheStore) Ping(ctx context.Context) error { return nil }

func (s *CacheStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	value, ok := s.strings[key]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	return value, nil
}

func (s *CacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	if ttl > 0 {
		s.expiries[key] = s.now().Add(ttl)
	} else {
		delete(s.expiries, key)
	}
	return nil
}

func (s *CacheStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	if s.keyExists(key) {
		return false, nil
	}
	s.strings[key] = value
	if ttl > 0 {
		s.expiries[key] = s.now().Add(ttl)
	}
	return true, nil
}

func (s *CacheStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		s.purge(key)
		if s.deleteKey(key) {
			removed++
		}
	}
	return removed, nil
}

func (s *CacheStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	return s.keyExists(key), nil
}

func (s *CacheStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	if !s.keyExists(key) {
		return false, nil
	}
	s.expiries[key] = s.now().Add(ttl)
	return true, nil
}

func (s *CacheStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	if !s.keyExists(key) {
		return -2 * time.Second, nil
	}
	deadline, ok := s.expiries[key]
	if !ok {
		return -1 * time.Second, nil
	}
	return deadline.Sub(s.now()), nil
}

func (s *CacheStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.incrBy(key, 1)
}

func (s *CacheStore) Decr(ctx context.Context, key string) (int64, error) {
	return s.incrBy(key, -1)
}

func (s *CacheStore) incrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	var current int64
	if raw, ok := s.strings[key]; ok {
		if _, err := fmt.Sscanf(raw, "%d", &current); err != nil {
			return 0, errors.New("value is not an integer")
		}
	}
	current += delta
	s.strings[key] = fmt.Sprintf("%d", current)
	return current, nil
}

func (s *CacheStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	list := s.lists[key]
	for _, value := range values {
		list = append([]string{value}, list...)
	}
	s.lists[key] = list
	return int64(len(list)), nil
}

func (s *CacheStore) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	list := append(s.lists[key], values...)
	s.lists[key] = list
	return int64(len(list)), nil
}

func (s *CacheStore) LPop(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	list := s.lists[key]
	if len(list) == 0 {
		return "", domain.ErrCacheMiss
	}
	value := list[0]
	s.lists[key] = list[1:]
	return value, nil
}

func (s *CacheStore) RPop(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	list := s.lists[key]
	if len(list) == 0 {
		return "", domain.ErrCacheMiss
	}
	value := list[len(list)-1]
	s.lists[key] = list[:len(list)-1]
	return value, nil
}

func (s *CacheStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	list := s.lists[key]
	from, to, ok := normalizeRange(start, stop, int64(len(list)))
	if !ok {
		return nil, nil
	}
	out := make([]string, to-from+1)
	copy(out, list[from:to+1])
	return out, nil
}

func (s *CacheStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	return int64(len(s.lists[key])), nil
}

func (s *CacheStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	list := s.lists[key]
	from, to, ok := normalizeRange(start, stop, int64(len(list)))
	if !ok {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = list[from : to+1]
	return nil
}

func (s *CacheStore) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error) {
	deadline := s.now().Add(timeout)
	for {
		s.mu.Lock()
		for _, key := range keys {
			s.purge(key)
			list := s.lists[key]
			if len(list) > 0 {
				value := list[len(list)-1]
				s.lists[key] = list[:len(list)-1]
				s.mu.Unlock()
				return []string{key, value}, nil
			}
		}
		s.mu.Unlock()
		if !s.now().Before(deadline) {
			return nil, domain.ErrCacheMiss
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *CacheStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	set := s.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var added int64
	for _, member := range members {
		if _, ok := set[member]; !ok {
			set[member] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *CacheStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	set := s.sets[key]
	var removed int64
	for _, member := range members {
		if _, ok := set[member]; ok {
			delete(set, member)
			removed++
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return removed, nil
}

func (s *CacheStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	members := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

// sortedZSet returns the members ordered by ascending score, ties broken by
// member lexicographic order, matching Redis. Caller holds the lock.
func (s *CacheStore) sortedZSet(key string) []zsetMember {
	zset := s.zsets[key]
	members := make([]zsetMember, 0, len(zset))
	for member, score := range zset {
		members = append(members, zsetMember{member: member, score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score < members[j].score
		}
		return members[i].member < members[j].member
	})
	return members
}

func (s *CacheStore) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	zset := s.zsets[key]
	if zset == nil {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	_, existed := zset[member]
	zset[member] = score
	if existed {
		return 0, nil
	}
	return 1, nil
}

func (s *CacheStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	return int64(len(s.zsets[key])), nil
}

func (s *CacheStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	sorted := s.sortedZSet(key)
	from, to, ok := normalizeRange(start, stop, int64(len(sorted)))
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, to-from+1)
	for _, m := range sorted[from : to+1] {
		out = append(out, m.member)
	}
	return out, nil
}

func (s *CacheStore) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	zset := s.zsets[key]
	var removed int64
	for _, member := range members {
		if _, ok := zset[member]; ok {
			delete(zset, member)
			removed++
		}
	}
	if len(zset) == 0 {
		delete(s.zsets, key)
	}
	return removed, nil
}

func (s *CacheStore) ZScore(ctx context.Context, key, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	score, ok := s.zsets[key][member]
	if !ok {
		return 0, domain.ErrCacheMiss
	}
	return score, nil
}

func (s *CacheStore) ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	zset := s.zsets[key]
	if zset == nil {
		zset = make(map[string]float64)
		s.zsets[key] = zset
	}
	zset[member] += increment
	return zset[member], nil
}

func (s *CacheStore) ZRank(ctx context.Context, key, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	for i, m := range s.sortedZSet(key) {
		if m.member == member {
			return int64(i), nil
		}
	}
	return -1, nil
}

func (s *CacheStore) ZRevRangeByScore(ctx context.Context, key, max, min string, offset, count int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	sorted := s.sortedZSet(key)
	var filtered []string
	for i := len(sorted) - 1; i >= 0; i-- {
		m := sorted[i]
		if !scoreWithin(m.score, min, max) {
			continue
		}
		filtered = append(filtered, m.member)
	}
	if offset >= int64(len(filtered)) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if count >= 0 && count < int64(len(filtered)) {
		filtered = filtered[:count]
	}
	return filtered, nil
}

func scoreWithin(score float64, min, max string) bool {
	ok := true
	if minVal, exclusive, has := parseScoreBound(min); has {
		if exclusive {
			ok = ok && score > minVal
		} else {
			ok = ok && score >= minVal
		}
	}
	if maxVal, exclusive, has := parseScoreBound(max); has {
		if exclusive {
			ok = ok && score < maxVal
		} else {
			ok = ok && score <= maxVal
		}
	}
	return ok
}

func parseScoreBound(bound string) (value float64, exclusive, has bool) {
	switch bound {
	case "", "-inf", "+inf":
		return 0, false, false
	}
	if bound[0] == '(' {
		exclusive = true
		bound = bound[1:]
	}
	if _, err := fmt.Sscanf(bound, "%g", &value); err != nil {
		return 0, false, false
	}
	return value, exclusive, true
}

func (s *CacheStore) HGet(ctx context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	value, ok := s.hashes[key][field]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	return value, nil
}

func (s *CacheStore) HSet(ctx context.Context, key string, fieldValues ...string) (int64, error) {
	if len(fieldValues)%2 != 0 {
		return 0, errors.New("hset requires field/value pairs")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	hash := s.hashes[key]
	if hash == nil {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	var created int64
	for i := 0; i < len(fieldValues); i += 2 {
		if _, ok := hash[fieldValues[i]]; !ok {
			created++
		}
		hash[fieldValues[i]] = fieldValues[i+1]
	}
	return created, nil
}

func (s *CacheStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	hash := s.hashes[key]
	var removed int64
	for _, field := range fields {
		if _, ok := hash[field]; ok {
			delete(hash, field)
			removed++
		}
	}
	if len(hash) == 0 {
		delete(s.hashes, key)
	}
	return removed, nil
}

func (s *CacheStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	out := make(map[string]string, len(s.hashes[key]))
	for field, value := range s.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (s *CacheStore) HIncrBy(ctx context.Context, key, field string, increment int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(key)
	hash := s.hashes[key]
	if hash == nil {
		hash = make(map[string]string)
		s.hashes[key] = hash
	}
	var current int64
	if raw, ok := hash[field]; ok {
		if _, err := fmt.Sscanf(raw, "%d", &current); err != nil {
			return 0, errors.New("hash value is not an integer")
		}
	}
	current += increment
	hash[field] = fmt.Sprintf("%d", current)
	return current, nil
}

func (s *CacheStore) XAdd(ctx context.Context, stream string, values map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(stream)
	s.streamID++
	id := fmt.Sprintf("%d-%d", s.now().UnixMilli(), s.streamID)
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	s.streams[stream] = append(s.streams[stream], domain.StreamMessage{ID: id, Values: copied})
	return id, nil
}

func (s *CacheStore) XRange(ctx context.Context, stream, start, stop string) ([]domain.StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge(stream)
	var out []domain.StreamMessage
	for _, msg := range s.streams[stream] {
		if start != "-" && msg.ID < start {
			continue
		}
		if stop != "+" && msg.ID > stop {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *CacheStore) XRead(ctx context.Context, streams map[string]string, count int64, block time.Duration) (map[string][]domain.StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]domain.StreamMessage)
	for stream, after := range streams {
		s.purge(stream)
		var msgs []domain.StreamMessage
		for _, msg := range s.streams[stream] {
			if after != "0" && after != "$" && msg.ID <= after {
				continue
			}
			msgs = append(msgs, msg)
			if count > 0 && int64(len(msgs)) >= count {
				break
			}
		}
		if len(msgs) > 0 {
			out[stream] = msgs
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrCacheMiss
	}
	return out, nil
}

func (s *CacheStore) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return nil, errors.New("eval is not supported by the in-memory store")
}

// normalizeRange maps Redis start/stop semantics (negative indexes count
// from the tail, stop is inclusive) onto slice bounds.
func normalizeRange(start, stop, length int64) (from, to int64, ok bool) {
	if length == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += length
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += length
	}
	if stop >= length {
		stop = length - 1
	}
	if start > stop || start >= length {
		return 0, 0, false
	}
	return start, stop, true
}
