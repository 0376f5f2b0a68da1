package events

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/domain"
)

func ev(n int) domain.Event {
	return domain.Event{
		Type:      domain.EventOpportunityFound,
		Timestamp: time.Now(),
		Fields:    map[string]string{"n": strconv.Itoa(n)},
	}
}

func TestMemoryPublisherRecentNewestFirst(t *testing.T) {
	p := NewMemoryPublisher(8)
	for i := 1; i <= 3; i++ {
		p.Publish(ev(i))
	}

	got := p.Recent(10)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].Fields["n"])
	assert.Equal(t, "1", got[2].Fields["n"])
}

func TestMemoryPublisherWrapsAround(t *testing.T) {
	p := NewMemoryPublisher(4)
	for i := 1; i <= 10; i++ {
		p.Publish(ev(i))
	}

	got := p.Recent(10)
	require.Len(t, got, 4)
	assert.Equal(t, "10", got[0].Fields["n"])
	assert.Equal(t, "7", got[3].Fields["n"])
}

func TestFanoutReachesAllSinks(t *testing.T) {
	a := NewMemoryPublisher(4)
	b := NewMemoryPublisher(4)
	f := Fanout{a, b}

	f.Publish(ev(1))

	assert.Len(t, a.Recent(10), 1)
	assert.Len(t, b.Recent(10), 1)
}
