package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "CLM24050007", Format(KindClaim, "2405", 7))
	assert.Equal(t, "MR24120001", Format(KindMedicalRecord, "2412", 1))
	assert.Equal(t, "TKT25010123", Format(KindTicket, "2501", 123))

	// Ordinals past four digits widen instead of wrapping.
	assert.Equal(t, "CLM240512345", Format(KindClaim, "2405", 12345))
}

func TestPeriodKey(t *testing.T) {
	assert.Equal(t, "2405", PeriodKey(time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2501", PeriodKey(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestMemoryGenerator_UnknownKind(t *testing.T) {
	g := NewMemoryGenerator()

	_, err := g.Next(context.Background(), Kind("invoice"), "2405")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestMemoryGenerator_SequentialPerPeriod(t *testing.T) {
	g := NewMemoryGenerator()
	ctx := context.Background()

	first, err := g.Next(ctx, KindClaim, "2405")
	require.NoError(t, err)
	second, err := g.Next(ctx, KindClaim, "2405")
	require.NoError(t, err)
	other, err := g.Next(ctx, KindClaim, "2406")
	require.NoError(t, err)

	assert.Equal(t, "CLM24050001", first)
	assert.Equal(t, "CLM24050002", second)
	// A new period restarts the ordinal.
	assert.Equal(t, "CLM24060001", other)

	// Kinds scope independently even within a period.
	ticket, err := g.Next(ctx, KindTicket, "2405")
	require.NoError(t, err)
	assert.Equal(t, "TKT24050001", ticket)
}

// N concurrent issuances for the same (kind, period) must yield N distinct
// ordinals forming a contiguous range.
func TestMemoryGenerator_ConcurrentGapless(t *testing.T) {
	g := NewMemoryGenerator()
	ctx := context.Background()

	const n = 100

	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			num, err := g.Next(ctx, KindMedicalRecord, "2405")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = num
		}(i)
	}
	wg.Wait()

	sort.Strings(results)
	for i, num := range results {
		assert.Equal(t, Format(KindMedicalRecord, "2405", int64(i+1)), num)
	}
}
