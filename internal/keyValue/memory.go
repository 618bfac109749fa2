package keyValue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

type value struct {
	value   string
	expires time.Time
}

type Memory struct {
	mutex   sync.RWMutex
	hashmap map[string]value
	sugar   *zap.SugaredLogger
	now     func() time.Time
}

func NewMemory(sugar *zap.SugaredLogger) *Memory {
	return &Memory{
		hashmap: make(map[string]value),
		sugar:   sugar,
		now:     time.Now,
	}
}

// RunJanitor removes expired keys every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.deleteExpired()
		}
	}
}

func (m *Memory) deleteExpired() {
	now := m.now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for key, v := range m.hashmap {
		if !v.expires.After(now) {
			delete(m.hashmap, key)
		}
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.sugar.Debugf("Getting value of key [%s] from hashmap", key)

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	v, ok := m.hashmap[key]
	if !ok || !v.expires.After(m.now()) {
		return "", nil
	}
	return v.value, nil
}

func (m *Memory) GetDel(_ context.Context, key string) (string, error) {
	m.sugar.Debugf("Getting and deleting value of key [%s] from hashmap", key)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	v, ok := m.hashmap[key]
	delete(m.hashmap, key)
	if !ok || !v.expires.After(m.now()) {
		return "", nil
	}
	return v.value, nil
}

func (m *Memory) Set(_ context.Context, key string, val string, expires time.Duration) error {
	m.sugar.Debugf("Setting value of key [%s] in hashmap", key)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.hashmap[key] = value{val, m.now().Add(expires)}
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.hashmap, key)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.now()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	v, ok := m.hashmap[key]
	if !ok || !v.expires.After(now) {
		v = value{"0", now.Add(window)}
	}

	count, err := strconv.ParseInt(v.value, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	count++
	v.value = strconv.FormatInt(count, 10)
	m.hashmap[key] = v

	return count, v.expires.Sub(now), nil
}
