package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

func plainOutput(buf *bytes.Buffer, jsonMode bool) *Output {
	return &Output{writer: buf, jsonMode: jsonMode}
}

// testConfigDir writes a config that keeps logs quiet and stores data in a
// temporary SQLite file.
func testConfigDir(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"FINNHUB_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "QUANTB_STORE", "QUANTB_LLM_PROVIDER"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	cfg := fmt.Sprintf(`[store]
backend = "sqlite"
path = %q

[logging]
level = "error"
console = false
file = false
`, filepath.Join(dir, "quantb.db"))
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(zerolog.Nop())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if v["version"] != Version {
		t.Errorf("expected %s, got %v", Version, v)
	}
}

func TestHoldingsPersistAcrossRuns(t *testing.T) {
	dir := testConfigDir(t)

	if _, err := run(t, "--config", dir, "holdings", "set", "aapl", "10", "185.5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := run(t, "--config", dir, "--json", "holdings", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var holdings []models.Holding
	if err := json.Unmarshal([]byte(out), &holdings); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(holdings) != 1 || holdings[0].Symbol != "AAPL" || holdings[0].Shares != 10 {
		t.Errorf("unexpected holdings %+v", holdings)
	}

	if _, err := run(t, "--config", dir, "holdings", "set", "AAPL", "0", "0"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out, _ = run(t, "--config", dir, "holdings", "list")
	if !strings.Contains(out, "No holdings saved") {
		t.Errorf("expected empty holdings, got %q", out)
	}
}

func TestHistoryShowUnknown(t *testing.T) {
	dir := testConfigDir(t)
	_, err := run(t, "--config", dir, "history", "show", "nope")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCommandsRequireCredentials(t *testing.T) {
	dir := testConfigDir(t)
	for _, args := range [][]string{
		{"quote", "AAPL"},
		{"screen", "tech under $50"},
		{"chat", "--local", "hi"},
	} {
		_, err := run(t, append([]string{"--config", dir}, args...)...)
		if !errors.Is(err, apperrors.ErrNotConfigured) {
			t.Errorf("%v: expected ErrNotConfigured, got %v", args, err)
		}
	}
}

func sseServer(t *testing.T, records ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["stream"] != true {
			t.Errorf("unexpected request %v (%v)", req, err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Conversation-ID", "conv-42")
		for _, rec := range records {
			fmt.Fprintf(w, "data: %s\n\n", rec)
		}
	}))
}

func TestRemoteTurnRendersStream(t *testing.T) {
	ts := sseServer(t,
		`{"content":"AAPL is "}`,
		`{"status":"Fetching market data...","toolCalls":["get_stock_quote"]}`,
		`{"components":[{"id":"x","type":"stock-quote","data":{"symbol":"AAPL","currentPrice":190.5,"changePercent":1.2},"priority":9,"interactive":true}],"layout":"inline"}`,
		`{"content":"trading at $190.50."}`,
		`{"metadata":{"symbols":["AAPL"],"intent":"research"}}`,
		`[DONE]`,
	)
	defer ts.Close()

	var buf bytes.Buffer
	turn := remoteTurn(ts.Client(), ts.URL, zerolog.Nop())
	id, err := turn(context.Background(), "", "How is AAPL?", plainOutput(&buf, false))
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if id != "conv-42" {
		t.Errorf("expected conversation id from header, got %q", id)
	}

	out := buf.String()
	for _, want := range []string{"AAPL is ", "Fetching market data... (get_stock_quote)", "trading at $190.50.", "[stock-quote] AAPL $190.50 +1.20%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRemoteTurnTruncatedStreamApologizes(t *testing.T) {
	ts := sseServer(t, `{"content":"Partial"}`)
	defer ts.Close()

	var buf bytes.Buffer
	_, err := remoteTurn(ts.Client(), ts.URL, zerolog.Nop())(context.Background(), "", "hi", plainOutput(&buf, false))
	if err == nil {
		t.Fatal("expected an error for a stream without the done marker")
	}
	if !strings.Contains(buf.String(), "I apologize") {
		t.Errorf("expected apology in output, got %q", buf.String())
	}
}

func TestRemoteTurnAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"upstream rate limit exceeded, retry later"}}`))
	}))
	defer ts.Close()

	var buf bytes.Buffer
	_, err := remoteTurn(ts.Client(), ts.URL, zerolog.Nop())(context.Background(), "", "hi", plainOutput(&buf, false))
	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != apperrors.CodeRateLimited || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected rate_limited api error, got %v", err)
	}
}

func TestInteractiveLoop(t *testing.T) {
	var seen []string
	var ids []string
	turn := func(_ context.Context, convID, text string, _ *Output) (string, error) {
		seen = append(seen, text)
		ids = append(ids, convID)
		if text == "boom" {
			return convID, errors.New("boom")
		}
		return "conv-1", nil
	}

	var buf bytes.Buffer
	in := strings.NewReader("hello\n\nboom\nagain\nexit\nignored\n")
	if err := interactive(context.Background(), in, plainOutput(&buf, false), "", turn); err != nil {
		t.Fatalf("interactive: %v", err)
	}
	if strings.Join(seen, ",") != "hello,boom,again" {
		t.Errorf("unexpected turns %v", seen)
	}
	if ids[0] != "" || ids[2] != "conv-1" {
		t.Errorf("expected the conversation id to carry over, got %v", ids)
	}
	if !strings.Contains(buf.String(), "Error: boom") {
		t.Errorf("expected the error to be printed, got %q", buf.String())
	}
}

func TestDefaultServerURL(t *testing.T) {
	if got := defaultServerURL(":8080"); got != "http://localhost:8080" {
		t.Errorf("got %q", got)
	}
	if got := defaultServerURL("10.0.0.2:9000"); got != "http://10.0.0.2:9000" {
		t.Errorf("got %q", got)
	}
}

func TestSummarizeComponent(t *testing.T) {
	tests := []struct {
		typ  models.ComponentType
		data string
		want string
	}{
		{models.ComponentStockQuote, `{"symbol":"MSFT","currentPrice":410,"changePercent":-0.5}`, "MSFT $410.00 -0.50%"},
		{models.ComponentStockComparison, `{"stocks":[{"symbol":"NVDA"},{"symbol":"AMD"}]}`, "NVDA vs AMD"},
		{models.ComponentTechnicalAnalysis, `{"symbol":"AAPL","indicators":{"rsi":61.25},"trend":"bullish"}`, "AAPL RSI 61.2, bullish trend"},
		{models.ComponentNewsSummary, `{"articles":[{},{}]}`, "2 articles"},
		{models.ComponentPositionCalculator, `{"symbol":"AAPL","recommendedShares":12,"totalCost":2286}`, "AAPL 12 shares, cost $2,286.00"},
		{models.ComponentPortfolioSummary, `{"positions":[{}],"totalValue":1900}`, "1 positions, value $1,900.00"},
		{models.ComponentMarketAnalysis, `null`, ""},
	}
	for _, tt := range tests {
		got := summarizeComponent(models.SmartComponent{Type: tt.typ, Data: json.RawMessage(tt.data)})
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(plainOutput(&buf, false), "SYMBOL", "PRICE")
	table.AddRow("AAPL", "$190.50")
	table.AddRow("GOOGL", "$1.00")
	table.Render()

	want := "SYMBOL  PRICE\n" +
		"---------------\n" +
		"AAPL    $190.50\n" +
		"GOOGL   $1.00\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestProperty_TableColumnsAlign(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("the second column starts at the same offset in every row", prop.ForAll(
		func(firsts []string) bool {
			var buf bytes.Buffer
			table := NewTable(plainOutput(&buf, false), "A", "B")
			for _, f := range firsts {
				table.AddRow(f, "x")
			}
			table.Render()

			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			offset := -1
			for i, line := range lines {
				if i == 1 {
					continue // separator
				}
				r := []rune(line)
				col := len(r) - 1
				if offset == -1 {
					offset = col
				} else if col != offset {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
