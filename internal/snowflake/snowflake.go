package snowflake

import (
	"fmt"
	"math"
	"sync"
	"time"
)

type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42                                    // 42
	timestampPos          = 64 - timestampLength                  // 22
	workerLength    int64 = 10                                    // 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12

	maxWaits = 100
)

var (
	maxWorkerValue    = int64(math.Pow(2, float64(workerLength)) - 1)
	maxIncrementValue = int64(math.Pow(2, float64(incrementLength)) - 1)
)

// Generator issues unique, time-ordered 64 bit ids. A message's creation
// time is read back from its id, so id order and creation order agree.
type Generator struct {
	mutex         sync.Mutex
	workerID      int64
	lastIncrement int64
	lastTimestamp int64
	now           func() time.Time
}

func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerValue {
		return nil, fmt.Errorf("worker ID value must be between 0 and [%d]", maxWorkerValue)
	}
	return &Generator{workerID: workerID, now: time.Now}, nil
}

// WithClock replaces the time source, used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate issues the next id. When the current millisecond's increments
// are used up it waits for the clock to move on, and only fails if it
// does not within maxWaits milliseconds.
func (g *Generator) Generate() (int64, error) {
	for range maxWaits {
		id, ok := g.next()
		if ok {
			return id, nil
		}
		time.Sleep(time.Millisecond)
	}
	return 0, fmt.Errorf("couldn't generate snowflake ID, increment stayed above %d", maxIncrementValue)
}

func (g *Generator) next() (int64, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	timestamp := g.now().UnixMilli()
	if timestamp < g.lastTimestamp {
		// clock went backwards, keep issuing from the last seen millisecond
		timestamp = g.lastTimestamp
	}

	if timestamp == g.lastTimestamp {
		if g.lastIncrement >= maxIncrementValue {
			return 0, false
		}
		g.lastIncrement += 1
	} else {
		g.lastIncrement = 0
		g.lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | g.workerID<<workerPos | g.lastIncrement, true
}

func Extract(snowflakeId int64) Snowflake {
	snowflake := Snowflake{
		Timestamp: snowflakeId >> timestampPos,
		WorkerID:  (snowflakeId >> workerPos) & ((1 << workerLength) - 1),
		Increment: snowflakeId & ((1 << incrementLength) - 1),
	}

	return snowflake
}

func ExtractTimestamp(snowflakeId int64) int64 {
	return snowflakeId >> timestampPos
}

// Time is the creation instant encoded in the id. The increment is added
// as nanoseconds, so ids from the same millisecond and worker get distinct,
// ordered instants that stay inside that millisecond.
func Time(snowflakeId int64) time.Time {
	sf := Extract(snowflakeId)
	return time.UnixMilli(sf.Timestamp).Add(time.Duration(sf.Increment)).UTC()
}
