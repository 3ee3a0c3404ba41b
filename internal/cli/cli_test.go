package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
	"paper-ledger/internal/store"
)

func run(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", configDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, configDir string, v interface{}, args ...string) {
	t.Helper()
	out, err := run(t, configDir, append(args, "--json")...)
	require.NoError(t, err, "ledger %s", strings.Join(args, " "))
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestVersionAndConfig(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)

	out, err = run(t, dir, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), strings.TrimSpace(out))

	var valid map[string]bool
	runJSON(t, dir, &valid, "config", "validate")
	assert.True(t, valid["valid"])

	out, err = run(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")
}

func TestTradingWorkflow(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		_, err := run(t, dir, "gate", "complete-module", "--user", "alice")
		require.NoError(t, err)
	}
	var gateStatus struct {
		Progress   models.UserProgress `json:"progress"`
		Authorized bool                `json:"authorized"`
	}
	runJSON(t, dir, &gateStatus, "gate", "status", "--user", "alice")
	assert.True(t, gateStatus.Authorized)
	assert.Equal(t, 3, gateStatus.Progress.CompletedModules)

	var session models.TradingSession
	runJSON(t, dir, &session, "session", "start", "--user", "alice")
	require.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionActive, session.Status)

	_, err := run(t, dir, "tick", "push", "aapl", "100")
	require.NoError(t, err)

	var trade models.Trade
	runJSON(t, dir, &trade, "trade", "open", "AAPL", "buy", "10", "--user", "alice", "--stop", "95", "--tp", "110")
	assert.Equal(t, 100.0, trade.EntryPrice)
	assert.Equal(t, session.ID, trade.SessionID)

	var pushed struct {
		Revalued int `json:"revalued"`
	}
	runJSON(t, dir, &pushed, "tick", "push", "AAPL", "97")
	assert.Equal(t, 1, pushed.Revalued)

	var closed models.Trade
	runJSON(t, dir, &closed, "trade", "close", trade.ID, "--price", "106")
	require.NotNil(t, closed.PnL)
	assert.InDelta(t, 60.0, *closed.PnL, 1e-9)
	assert.InDelta(t, -30.0, closed.MAE, 1e-9)

	var summary models.SessionSummary
	runJSON(t, dir, &summary, "session", "summary", session.ID)
	assert.Equal(t, 1, summary.Session.TradeCount)
	assert.InDelta(t, 60.0, summary.Session.TotalPnL, 1e-9)

	var rebuilt models.TradingSession
	runJSON(t, dir, &rebuilt, "session", "rebuild", session.ID)
	assert.Equal(t, 1, rebuilt.TradeCount)
	assert.InDelta(t, 60.0, rebuilt.TotalPnL, 1e-9)

	// The worker pool drains before each command exits, so the analysis
	// exists even though two ticks are not enough for a complete one.
	var analysis models.TradeAnalytics
	runJSON(t, dir, &analysis, "analytics", "show", trade.ID)
	assert.Equal(t, trade.ID, analysis.TradeID)
	assert.False(t, analysis.Complete)
	assert.InDelta(t, 60.0, analysis.Financial.PnL, 1e-9)

	var trades []models.Trade
	runJSON(t, dir, &trades, "trade", "list", "--user", "alice")
	assert.Len(t, trades, 1)

	var ended models.TradingSession
	runJSON(t, dir, &ended, "session", "end", session.ID)
	assert.Equal(t, models.SessionCompleted, ended.Status)

	runJSON(t, dir, &gateStatus, "gate", "status", "--user", "alice")
	assert.Equal(t, 1, gateStatus.Progress.SimulationCount)

	_, err = run(t, dir, "user", "erase", "alice")
	assert.Error(t, err, "erase requires --yes")

	var erased store.ErasureResult
	runJSON(t, dir, &erased, "user", "erase", "alice", "--yes")
	assert.EqualValues(t, 1, erased.Trades)
	assert.EqualValues(t, 1, erased.Sessions)
	assert.EqualValues(t, 1, erased.Analytics)
}

func TestOpenRequiresQualification(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "tick", "push", "MSFT", "400")
	require.NoError(t, err)

	_, err = run(t, dir, "trade", "open", "MSFT", "buy", "1", "--user", "bob", "--session", "none")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotQualified))

	_, err = run(t, dir, "trade", "open", "MSFT", "buy", "x", "--user", "bob")
	assert.Error(t, err)
}

func TestTickLatest(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "tick", "push", "TSLA", "201.5", "--at", "2024-03-01T14:30:00Z")
	require.NoError(t, err)

	var tick models.Tick
	runJSON(t, dir, &tick, "tick", "latest", "tsla")
	assert.Equal(t, "TSLA", tick.Symbol)
	assert.Equal(t, 201.5, tick.Price)

	_, err = run(t, dir, "tick", "latest", "NONE")
	assert.True(t, errors.Is(err, errors.ErrNoQuote))

	_, err = run(t, dir, "tick", "push", "TSLA", "-1")
	assert.Error(t, err)
}

func TestTickPushRejectsCrossedQuote(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "tick", "push", "TSLA", "200", "--bid", "201", "--ask", "199")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidOrder))
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "bid", verr.Field)

	_, err = run(t, dir, "tick", "latest", "TSLA")
	assert.True(t, errors.Is(err, errors.ErrNoQuote))
}

func TestExportTrades(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "trades.csv")
	out, err := run(t, dir, "export", "trades", "--output", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 0 trades")
	assert.FileExists(t, outFile)
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	o := &Output{writer: &buf}
	table := NewTable(o, "Symbol", "P&L")
	table.AddRow("AAPL", "+$60.00")
	table.AddRow("MSFT", "-$5.00")
	table.Render()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Symbol  P&L", lines[0])
	assert.Equal(t, "AAPL    +$60.00", lines[2])
	assert.Equal(t, 6, visibleLen("\x1b[32mgreen!\x1b[0m"))
}
