package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paper-trading-ledger-go/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yml := fmt.Sprintf(`database:
  dsn: %q
cache:
  data_dir: %q
logger:
  level: "error"
`, filepath.Join(dir, "ledger.db"), filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0o644))
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	e := &env{}
	root := newRootCmd(e)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", dir}, args...))
	err := e.execute(context.Background(), root)
	return out.String(), err
}

func TestLedgerCommands(t *testing.T) {
	dir := setupConfigDir(t)

	out, err := run(t, dir, "submit", "--date", "2024-01-10", "--long", "aapl, msft", "--short", "TSLA")
	require.NoError(t, err)
	assert.Contains(t, out, "submit 2024-01-10: 3 succeeded, 0 failed")

	// Resubmitting flips direction without duplicating the trade.
	_, err = run(t, dir, "submit", "--date", "2024-01-10", "--short", "AAPL")
	require.NoError(t, err)

	out, err = run(t, dir, "list", "--symbol", "AAPL", "--view", "sizing")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"AAPL", "2024-01-10", "short"}, strings.Fields(lines[1]))

	out, err = run(t, dir, "note", "MSFT", "2024-01-10", "earnings", "tomorrow")
	require.NoError(t, err)
	assert.Contains(t, out, "noted MSFT 2024-01-10")

	out, err = run(t, dir, "list", "--date", "2024-01-10")
	require.NoError(t, err)
	assert.Contains(t, out, "earnings tomorrow")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)

	out, err = run(t, dir, "stats")
	require.NoError(t, err)
	assert.Equal(t, []string{"trades", "3"}, strings.Fields(strings.Split(out, "\n")[0]))

	_, err = run(t, dir, "clear")
	assert.Error(t, err)

	out, err = run(t, dir, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 3 trades")

	out, err = run(t, dir, "list")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
}

func TestLedgerCommands_InvalidInput(t *testing.T) {
	dir := setupConfigDir(t)

	_, err := run(t, dir, "submit", "--date", "2024-01-10")
	assert.ErrorContains(t, err, "no symbols")

	_, err = run(t, dir, "submit", "--date", "10/01/2024", "--long", "AAPL")
	assert.ErrorContains(t, err, "invalid date")

	_, err = run(t, dir, "list", "--symbol", "AAPL", "--date", "2024-01-10")
	assert.Error(t, err)

	_, err = run(t, dir, "list", "--view", "wide")
	assert.ErrorContains(t, err, "unknown view")

	_, err = run(t, dir, "note", "AAPL", "2024-01-10", "missing")
	assert.ErrorContains(t, err, "trade not found")
}

func TestFailedCommandClosesLedger(t *testing.T) {
	dir := setupConfigDir(t)
	ctx := context.Background()

	e := &env{}
	root := newRootCmd(e)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", dir, "note", "AAPL", "2024-01-10", "missing"})

	err := e.execute(ctx, root)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	// The database handle was released even though the command failed.
	require.NotNil(t, e.app)
	_, err = e.app.Engine.Store().FindBySymbol(ctx, "AAPL")
	assert.ErrorIs(t, err, ledger.ErrStorage)
}
