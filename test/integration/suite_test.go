//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/gin-gonic/gin"

	httpadapter "github.com/jsamuelsen/devflow-identity/internal/adapters/http"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/handlers"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/memory"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// testContext holds state shared across step definitions within a scenario.
type testContext struct {
	baseURL      string
	server       *httptest.Server
	client       *http.Client
	response     *http.Response
	responseBody []byte
	err          error
}

// newTestContext creates a new test context with sensible defaults.
func newTestContext() *testContext {
	return &testContext{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// start points the scenario at BASE_URL, or at a fresh in-process service
// over an in-memory store when BASE_URL is unset.
func (tc *testContext) start() {
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		tc.baseURL = baseURL
		return
	}

	tc.server = httptest.NewServer(newInProcessRouter())
	tc.baseURL = tc.server.URL
}

// reset clears response state between scenarios.
func (tc *testContext) reset() {
	if tc.response != nil && tc.response.Body != nil {
		tc.response.Body.Close()
	}

	if tc.server != nil {
		tc.server.Close()
		tc.server = nil
	}

	tc.response = nil
	tc.responseBody = nil
	tc.err = nil
}

func newInProcessRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	registry := ports.NewHealthRegistry()
	_ = registry.Register(store)

	identity := app.NewIdentityService(app.IdentityServiceConfig{Store: store, Logger: logger})
	directory := app.NewDirectoryService(app.DirectoryServiceConfig{Users: store, Accounts: store, Logger: logger})

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:         logger,
		AppConfig:      &config.AppConfig{Name: "devflow-identity"},
		HealthHandler:  handlers.NewHealthHandler(registry, handlers.BuildInfo{}),
		AuthHandler:    handlers.NewAuthHandler(identity),
		UserHandler:    handlers.NewUserHandler(directory),
		AccountHandler: handlers.NewAccountHandler(directory),
	})

	return engine
}

// InitializeScenario registers step definitions for each scenario.
func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := newTestContext()

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		tc.start()
		return ctx, nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^the service is running$`, tc.theServiceIsRunning)
	ctx.Step(`^I request GET "([^"]*)"$`, tc.iRequestGET)
	ctx.Step(`^I POST to "([^"]*)" with:$`, tc.iPOSTWith)
	ctx.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, tc.theResponseFieldShouldBe)
	ctx.Step(`^"([^"]*)" should list (\d+) entries$`, tc.shouldListEntries)
}

// theServiceIsRunning verifies the service is reachable.
func (tc *testContext) theServiceIsRunning() error {
	if err := tc.do(http.MethodGet, "/-/live", nil); err != nil {
		return fmt.Errorf("service is not running at %s: %w", tc.baseURL, err)
	}

	if tc.response.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status %d", tc.response.StatusCode)
	}

	return nil
}

// iRequestGET makes a GET request to the specified path.
func (tc *testContext) iRequestGET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

// iPOSTWith posts the doc string as a JSON body.
func (tc *testContext) iPOSTWith(path string, body *godog.DocString) error {
	return tc.do(http.MethodPost, path, []byte(body.Content))
}

func (tc *testContext) do(method, path string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, tc.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if tc.response != nil {
		tc.response.Body.Close()
	}

	tc.response, tc.err = tc.client.Do(req)
	if tc.err != nil {
		return fmt.Errorf("request failed: %w", tc.err)
	}

	tc.responseBody, tc.err = io.ReadAll(tc.response.Body)
	if tc.err != nil {
		return fmt.Errorf("failed to read response body: %w", tc.err)
	}

	return nil
}

// theResponseStatusShouldBe asserts the response status code.
func (tc *testContext) theResponseStatusShouldBe(expectedCode int) error {
	if tc.response == nil {
		return fmt.Errorf("no response received")
	}

	if tc.response.StatusCode != expectedCode {
		return fmt.Errorf("expected status %d, got %d. Body: %s",
			expectedCode, tc.response.StatusCode, string(tc.responseBody))
	}

	return nil
}

// theResponseShouldContain asserts the response body contains the given text.
func (tc *testContext) theResponseShouldContain(text string) error {
	if tc.responseBody == nil {
		return fmt.Errorf("no response body")
	}

	if body := string(tc.responseBody); !strings.Contains(body, text) {
		return fmt.Errorf("response body does not contain %q.\nBody: %s", text, body)
	}

	return nil
}

// theResponseFieldShouldBe compares the value at a dotted path of the JSON
// body, rendered with fmt, to want.
func (tc *testContext) theResponseFieldShouldBe(path, want string) error {
	var value any
	if err := json.Unmarshal(tc.responseBody, &value); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}

	for _, key := range strings.Split(path, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("no field %q in %s", path, tc.responseBody)
		}

		value = obj[key]
	}

	if got := fmt.Sprint(value); got != want {
		return fmt.Errorf("field %q is %q, want %q", path, got, want)
	}

	return nil
}

// shouldListEntries fetches a list endpoint and counts its data entries.
func (tc *testContext) shouldListEntries(path string, want int) error {
	if err := tc.do(http.MethodGet, path, nil); err != nil {
		return err
	}

	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(tc.responseBody, &env); err != nil {
		return fmt.Errorf("response is not a list envelope: %w", err)
	}

	if len(env.Data) != want {
		return fmt.Errorf("%s listed %d entries, want %d", path, len(env.Data), want)
	}

	return nil
}

// TestFeatures runs the GoDog BDD test suite.
func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../features"},
			TestingT: t,
			Tags:     os.Getenv("GODOG_TAGS"),
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
