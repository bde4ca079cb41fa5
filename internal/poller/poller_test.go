package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/kis"
)

func TestNew_VendorCapsAndDelay(t *testing.T) {
	p := New(nil, nil, nil, 0, 0, arbor.NewLogger())
	assert.Equal(t, kis.MaxMultiQuote, p.batchSize)
	assert.Equal(t, defaultBatchDelay, p.batchDelay)

	p = New(nil, nil, nil, 10, 250*time.Millisecond, arbor.NewLogger())
	assert.Equal(t, 10, p.batchSize)
	assert.Equal(t, 250*time.Millisecond, p.batchDelay)

	// Oversized batches clamp to the vendor cap
	p = New(nil, nil, nil, 100, 0, arbor.NewLogger())
	assert.Equal(t, kis.MaxMultiQuote, p.batchSize)
}
