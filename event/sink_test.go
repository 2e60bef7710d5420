package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkFuncForwardsEvent(t *testing.T) {
	var got Event
	sink := SinkFunc(func(e Event) { got = e })

	sink.OnEvent(Status("hello"))
	assert.Equal(t, KindStatus, got.Kind)
	assert.Equal(t, "hello", got.Message)
}

func TestQueuePollOrderPreserved(t *testing.T) {
	q := NewQueue(0)
	q.OnEvent(Status("one"))
	q.OnEvent(Status("two"))

	first, ok := q.Poll()
	assert.True(t, ok)
	assert.Equal(t, "one", first.Message)

	second, ok := q.Poll()
	assert.True(t, ok)
	assert.Equal(t, "two", second.Message)

	_, ok = q.Poll()
	assert.False(t, ok)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.OnEvent(Status("one"))
	q.OnEvent(Status("two"))
	q.OnEvent(Status("three"))

	first, ok := q.Poll()
	assert.True(t, ok)
	assert.Equal(t, "two", first.Message)

	second, ok := q.Poll()
	assert.True(t, ok)
	assert.Equal(t, "three", second.Message)
}

func TestTerminalEventConstructors(t *testing.T) {
	e := Completed("demo.txt", 6, "/tmp/out/demo.txt")
	assert.Equal(t, KindCompleted, e.Kind)
	assert.Equal(t, uint64(6), e.SizeBytes)

	errEvent := Error(ErrChecksumMismatch, assert.AnError)
	assert.Equal(t, KindError, errEvent.Kind)
	assert.Equal(t, ErrChecksumMismatch, errEvent.Code)
	assert.NotEmpty(t, errEvent.Message)
}
