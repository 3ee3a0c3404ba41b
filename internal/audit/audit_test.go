package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(Config{LogDir: dir, MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Log(ctx, Event{EventType: TradeOpened, TradeID: "t1", Symbol: "AAPL", Success: true}))
	require.NoError(t, l.Log(ctx, Event{EventType: TradeClosed, TradeID: "t1", Details: map[string]interface{}{"pnl": 50.0}, Success: true}))
	require.NoError(t, l.Close())

	f, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, TradeOpened, events[0].EventType)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, 50.0, events[1].Details["pnl"])
}

func TestMemoryCount(t *testing.T) {
	m := &Memory{}
	ctx := context.Background()
	_ = m.Log(ctx, Event{EventType: SessionStarted})
	_ = m.Log(ctx, Event{EventType: SessionStarted})
	_ = m.Log(ctx, Event{EventType: SessionCompleted})

	assert.Equal(t, 2, m.Count(SessionStarted))
	assert.Len(t, m.Events(), 3)
}
