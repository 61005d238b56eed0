package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/tonecheck/internal/bridge"
	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
	"github.com/dshills/tonecheck/internal/output"
	"github.com/dshills/tonecheck/internal/review"
	"github.com/dshills/tonecheck/internal/store"
)

// resetFlags resets all package-level flag variables to their zero values.
func resetFlags() {
	flagProvider = ""
	flagModel = ""
	flagFormat = ""
	flagOut = ""
	flagGuidelines = ""
	flagChunkSize = 0
	flagWorkerURL = ""
	flagFailOnFindings = false
	flagRulesJSON = false
	flagNoHistory = false
	flagGuidelinesJSON = false
	flagPageID = ""
	flagDatabaseID = ""
	flagSyncOut = ""
	flagHistoryJSON = false
	flagClearAll = false
	flagConfigForce = false
	flagConfigJSON = false
	exitCode = ExitSuccess
}

// isolate points every config, cache and env lookup at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	resetFlags()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	for _, k := range []string{
		"TONECHECK_PROVIDER", "TONECHECK_MODEL", "TONECHECK_FORMAT", "TONECHECK_WORKER_URL",
		"TONECHECK_CHUNK_SIZE", "TONECHECK_LOG_LEVEL", "TONECHECK_GUIDELINES_FILE",
		"TONECHECK_HISTORY_DB", "NOTION_TOKEN",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const unitsJSON = `[
  {"id":"1:2","characters":"저장 하기","layerName":"Label","parentName":"Primary Button"},
  {"id":"1:3","characters":"확인","layerName":"Title","parentName":"Toast"}
]`

// workerServer answers every review with a fix for ordinal 1 and a pass
// for ordinal 2.
func workerServer(t *testing.T) *httptest.Server {
	t.Helper()
	content := `{"results":[` +
		`{"id":1,"original":"저장 하기","suggestion":"저장하기","reason":"붙여 씁니다","violation_type":"띄어쓰기"},` +
		`{"id":2,"original":"확인","suggestion":"확인","reason":"","violation_type":""}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// --- buildOverrides tests ---

func TestBuildOverrides_NoFlags(t *testing.T) {
	resetFlags()
	m := buildOverrides()
	if len(m) != 0 {
		t.Errorf("buildOverrides() with no flags = %v, want empty map", m)
	}
}

func TestBuildOverrides_AllFlags(t *testing.T) {
	resetFlags()
	flagProvider = "worker"
	flagModel = "gpt-4o"
	flagFormat = "json"
	flagGuidelines = "rules.yaml"
	flagChunkSize = 10
	flagWorkerURL = "http://localhost:8787"

	m := buildOverrides()

	expected := map[string]string{
		"provider":       "worker",
		"model":          "gpt-4o",
		"format":         "json",
		"guidelinesFile": "rules.yaml",
		"chunkSize":      "10",
		"workerURL":      "http://localhost:8787",
	}
	if len(m) != len(expected) {
		t.Fatalf("buildOverrides() returned %d entries, want %d", len(m), len(expected))
	}
	for k, v := range expected {
		if m[k] != v {
			t.Errorf("buildOverrides()[%q] = %q, want %q", k, m[k], v)
		}
	}
}

// --- unit parsing tests ---

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"array", unitsJSON, 2, false},
		{"selection message", `{"type":"selection","texts":[{"id":"9","characters":"다음"}]}`, 1, false},
		{"empty input", "  \n", 0, true},
		{"missing id", `[{"characters":"다음"}]`, 0, true},
		{"invalid json", `[{"id":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := parseUnits([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseUnits error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(units) != tt.want {
				t.Errorf("len(units) = %d, want %d", len(units), tt.want)
			}
		})
	}
}

func TestReadUnits_StdinAndFile(t *testing.T) {
	units, err := readUnits("-", strings.NewReader(unitsJSON))
	if err != nil {
		t.Fatalf("readUnits(stdin) error: %v", err)
	}
	if units[0].Content != "저장 하기" {
		t.Errorf("Content = %q", units[0].Content)
	}

	path := writeFile(t, filepath.Join(t.TempDir(), "units.json"), unitsJSON)
	units, err = readUnits(path, nil)
	if err != nil {
		t.Fatalf("readUnits(file) error: %v", err)
	}
	if len(units) != 2 || units[1].ParentName != "Toast" {
		t.Errorf("units = %+v", units)
	}
}

func TestDescribeRule(t *testing.T) {
	tests := []struct {
		rule review.Rule
		want string
	}{
		{review.Rule{Name: "존댓말", Category: "말투"}, "존댓말 [말투] (all)"},
		{review.Rule{Name: "버튼", Targets: []string{"Button", "CTA"}}, "버튼 (button, button)"},
		{review.Rule{Name: "미정", Targets: []string{"배너"}}, "미정 (배너?)"},
	}
	for _, tt := range tests {
		if got := describeRule(tt.rule); got != tt.want {
			t.Errorf("describeRule(%s) = %q, want %q", tt.rule.Name, got, tt.want)
		}
	}
}

// --- version and models ---

func TestVersionCmd_Execute(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	if err := versionCmd.Execute(); err != nil {
		t.Fatalf("version command returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "tonecheck version "+version) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestModelsListCmd_Execute(t *testing.T) {
	// modelsListCmd writes to os.Stdout directly, but we can verify it runs without error.
	modelsCmd.SetArgs([]string{"list"})
	if err := modelsCmd.Execute(); err != nil {
		t.Errorf("models list command returned error: %v", err)
	}
}

func TestKnownModels_AllProviders(t *testing.T) {
	providers := map[string]bool{
		"openai":    false,
		"worker":    false,
		"anthropic": false,
		"gemini":    false,
		"ollama":    false,
	}
	for _, info := range knownModels {
		if _, ok := providers[info.Provider]; ok {
			providers[info.Provider] = true
		}
		if len(info.Models) == 0 {
			t.Errorf("provider %s has no models", info.Provider)
		}
	}
	for provider, found := range providers {
		if !found {
			t.Errorf("expected provider %q not found in knownModels", provider)
		}
	}
}

// --- config command tests ---

func TestConfigInit_CreatesFile(t *testing.T) {
	tmpDir := isolate(t)

	configCmd.SetArgs([]string{"init"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config init returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "tonecheck", "config.json"))
	if err != nil {
		t.Fatalf("config init did not create config.json: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	if cfg.Provider != "openai" || cfg.ChunkSize != 40 {
		t.Errorf("config file = %+v, want defaults", cfg)
	}
}

func TestConfigSet_UpdatesFile(t *testing.T) {
	tmpDir := isolate(t)

	configCmd.SetArgs([]string{"set", "guidelines.pageId", "abc123"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config set returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "tonecheck", "config.json"))
	if err != nil {
		t.Fatalf("cannot read config file: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid JSON: %v", err)
	}
	if cfg.Guidelines.PageID != "abc123" {
		t.Errorf("guidelines.pageId = %q, want abc123", cfg.Guidelines.PageID)
	}
}

func TestConfigSet_InvalidKey(t *testing.T) {
	isolate(t)
	configCmd.SetArgs([]string{"set", "failOn", "high"})
	if err := configCmd.Execute(); err == nil {
		t.Error("config set with invalid key should return error")
	}
}

func TestConfigSet_MissingArgs(t *testing.T) {
	isolate(t)
	configCmd.SetArgs([]string{"set", "provider"})
	if err := configCmd.Execute(); err == nil {
		t.Error("config set with 1 arg should return error (requires 2)")
	}
}

func TestConfigShow_DottedKeys(t *testing.T) {
	isolate(t)
	var buf bytes.Buffer
	configCmd.SetOut(&buf)
	t.Cleanup(func() { configCmd.SetOut(nil) })
	configCmd.SetArgs([]string{"show"})
	if err := configCmd.Execute(); err != nil {
		t.Fatalf("config show returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"provider = openai\n", "chunkSize = 40\n", "log.level = info\n", "cache.enabled = true\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestFlatten(t *testing.T) {
	out := make(map[string]any)
	flatten("", map[string]any{"a": 1, "b": map[string]any{"c": "x", "d": map[string]any{"e": true}}}, out)
	if len(out) != 3 || out["a"] != 1 || out["b.c"] != "x" || out["b.d.e"] != true {
		t.Errorf("flatten = %v", out)
	}
}

// --- cache command tests ---

func TestCacheClear_KeepsSyncedGuidelines(t *testing.T) {
	tmpDir := isolate(t)
	cacheDir := filepath.Join(tmpDir, "tonecheck")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(cacheDir, "abc123.json"), `{"key":"test"}`)

	cfg := config.Default()
	c, err := openCache(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := guidelines.Save(c, guidelines.Corpus{Rules: []review.Rule{{Name: "r"}}, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	cacheCmd.SetArgs([]string{"clear"})
	if err := cacheCmd.Execute(); err != nil {
		t.Fatalf("cache clear returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "abc123.json")); !os.IsNotExist(err) {
		t.Error("cache clear did not remove completion entry")
	}
	if _, ok := c.Get(guidelines.CacheKey); !ok {
		t.Error("cache clear without --all should keep the synced corpus")
	}

	cacheCmd.SetArgs([]string{"clear", "--all"})
	if err := cacheCmd.Execute(); err != nil {
		t.Fatalf("cache clear --all returned error: %v", err)
	}
	if _, ok := c.Get(guidelines.CacheKey); ok {
		t.Error("cache clear --all should remove the synced corpus")
	}
}

// --- rules and guidelines ---

func TestRulesMatch(t *testing.T) {
	tmpDir := isolate(t)
	corpusPath := filepath.Join(tmpDir, "rules.yaml")
	err := guidelines.WriteFile(corpusPath, guidelines.Corpus{Rules: []review.Rule{
		{Name: "버튼 문구", Targets: []string{"button"}},
		{Name: "모달 제목", Targets: []string{"modal"}},
		{Name: "공통 말투"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	unitsPath := writeFile(t, filepath.Join(tmpDir, "units.json"), unitsJSON)

	var buf bytes.Buffer
	rulesCmd.SetOut(&buf)
	t.Cleanup(func() { rulesCmd.SetOut(nil) })
	rulesCmd.SetArgs([]string{"match", unitsPath, "--guidelines", corpusPath})
	if err := rulesCmd.Execute(); err != nil {
		t.Fatalf("rules match returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "2 of 3 rules apply to 2 units") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "모달 제목") {
		t.Error("modal rule should not match button and toast units")
	}
}

func TestGuidelinesShow_Bundled(t *testing.T) {
	isolate(t)
	var buf bytes.Buffer
	guidelinesCmd.SetOut(&buf)
	t.Cleanup(func() { guidelinesCmd.SetOut(nil) })
	guidelinesCmd.SetArgs([]string{"show"})
	if err := guidelinesCmd.Execute(); err != nil {
		t.Fatalf("guidelines show returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "Source: bundled") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestGuidelinesSync_NoSource(t *testing.T) {
	isolate(t)
	guidelinesCmd.SetArgs([]string{"sync", "--page-id", "p", "--database-id", "d"})
	if err := guidelinesCmd.Execute(); err != nil {
		t.Fatalf("guidelines sync returned error: %v", err)
	}
	if exitCode != ExitRuntimeError {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitRuntimeError)
	}
}

// --- review ---

func TestReview_WorkerProvider(t *testing.T) {
	tmpDir := isolate(t)
	srv := workerServer(t)
	unitsPath := writeFile(t, filepath.Join(tmpDir, "units.json"), unitsJSON)
	outPath := filepath.Join(tmpDir, "report.json")

	reviewCmd.SetArgs([]string{unitsPath,
		"--provider", "worker", "--worker-url", srv.URL,
		"--format", "json", "--out", outPath, "--fail-on-findings"})
	if err := reviewCmd.Execute(); err != nil {
		t.Fatalf("review returned error: %v", err)
	}
	if exitCode != ExitFindings {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitFindings)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	var report output.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %+v", report.Results)
	}
	if report.Results[0].NodeID != "1:2" || report.Results[0].Suggestion != "저장하기" {
		t.Errorf("first result = %+v", report.Results[0])
	}
	if report.Summary.Fixes != 1 || report.Summary.Passes != 1 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestReview_ProviderFailure(t *testing.T) {
	tmpDir := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	unitsPath := writeFile(t, filepath.Join(tmpDir, "units.json"), unitsJSON)

	reviewCmd.SetArgs([]string{unitsPath, "--provider", "worker", "--worker-url", srv.URL})
	if err := reviewCmd.Execute(); err != nil {
		t.Fatalf("review returned error: %v", err)
	}
	if exitCode != ExitAuthError {
		t.Errorf("exitCode = %d, want %d", exitCode, ExitAuthError)
	}
}

// --- history and serve ---

func TestHistoryList_JSON(t *testing.T) {
	tmpDir := isolate(t)
	st, err := store.Open(filepath.Join(tmpDir, "tonecheck", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	entries := []review.HistoryEntry{
		{Timestamp: 2000, Results: []review.ReviewResult{{NodeID: "a", Original: "x", Suggestion: "y", Applied: true}}},
		{Timestamp: 1000, Results: []review.ReviewResult{{NodeID: "b", Original: "z", Suggestion: "z"}}},
	}
	if err := st.SaveHistory(context.Background(), entries); err != nil {
		t.Fatal(err)
	}
	st.Close()

	var buf bytes.Buffer
	historyCmd.SetOut(&buf)
	t.Cleanup(func() { historyCmd.SetOut(nil) })
	historyCmd.SetArgs([]string{"list", "--json"})
	if err := historyCmd.Execute(); err != nil {
		t.Fatalf("history list returned error: %v", err)
	}
	var got []review.HistoryEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("history list output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[0].Timestamp != 2000 || !got[0].Results[0].Applied {
		t.Errorf("history = %+v", got)
	}

	buf.Reset()
	historyCmd.SetArgs([]string{"clear"})
	if err := historyCmd.Execute(); err != nil {
		t.Fatalf("history clear returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "Removed 2 history entries") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestServe_SeedsHistoryAndEmitsResults(t *testing.T) {
	tmpDir := isolate(t)
	srv := workerServer(t)
	st, err := store.Open(filepath.Join(tmpDir, "tonecheck", "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	seed := []review.HistoryEntry{{Timestamp: 1700000000000, Results: []review.ReviewResult{{NodeID: "old", Original: "a", Suggestion: "b"}}}}
	if err := st.SaveHistory(context.Background(), seed); err != nil {
		t.Fatal(err)
	}
	st.Close()

	var out bytes.Buffer
	serveCmd.SetIn(strings.NewReader(`{"type":"selection","texts":` + strings.ReplaceAll(unitsJSON, "\n", "") + "}\n"))
	serveCmd.SetOut(&out)
	t.Cleanup(func() {
		serveCmd.SetIn(nil)
		serveCmd.SetOut(nil)
	})
	serveCmd.SetArgs([]string{"--provider", "worker", "--worker-url", srv.URL})
	if err := serveCmd.Execute(); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
	if exitCode != ExitSuccess {
		t.Fatalf("exitCode = %d", exitCode)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) == 0 {
		t.Fatal("serve wrote no frames")
	}
	m, err := bridge.Decode([]byte(lines[0]))
	if err != nil {
		t.Fatalf("decoding first frame: %v", err)
	}
	results, ok := m.(bridge.Results)
	if !ok {
		t.Fatalf("first frame = %T, want results", m)
	}
	if len(results.History) != 1 || results.History[0].Timestamp != 1700000000000 {
		t.Errorf("history = %+v, want seeded entry", results.History)
	}
}
