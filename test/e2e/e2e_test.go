//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorly/proctorly-backend/internal/config"
	"github.com/proctorly/proctorly-backend/internal/docstore"
	"github.com/proctorly/proctorly-backend/internal/model"
)

const (
	defaultBaseURL = "http://localhost:8080"
	masterPassword = "exam123"
	candidateName  = "e2e_candidate"
	candidatePass  = "secret42"
	candidateFull  = "E2E Candidate"
)

var (
	baseURL        string
	adminToken     string
	candidateToken string
	paperIDs       []string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// 1. Wipe any state from a previous run directly in Redis.
	if err := cleanup(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	// 2. Run Tests
	code := m.Run()

	os.Exit(code)
}

// cleanup removes the test candidate's documents so the flow always
// starts from a blank slate. It talks to Redis directly because the
// API has no "delete result for one user" endpoint.
func cleanup() error {
	ctx := context.Background()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	store := docstore.NewRedisStore(rdb, zerolog.Nop())
	for _, col := range []string{config.ColSessions, config.ColTimers, config.ColUsers} {
		if err := store.Delete(ctx, col, candidateName); err != nil && err != docstore.ErrNotFound {
			return fmt.Errorf("delete %s/%s: %w", col, candidateName, err)
		}
	}
	// Results are a single shared document; drop it wholesale.
	if err := store.Delete(ctx, config.ColResults, config.ResultsDocID); err != nil && err != docstore.ErrNotFound {
		return fmt.Errorf("delete results: %w", err)
	}
	// Drop any lingering single-device login marker.
	if err := rdb.Del(ctx, config.CacheKey.CandidateLoginKey(candidateName)).Err(); err != nil {
		return fmt.Errorf("clear login key: %w", err)
	}
	return nil
}

func TestE2EFlow(t *testing.T) {
	// Step 1: Login as Admin (master password always works)
	t.Run("AdminLogin", func(t *testing.T) {
		resp, err := post("/api/v1/auth/admin/login", map[string]string{"password": masterPassword}, "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Token string `json:"token"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		adminToken = body.Data.Token
		if adminToken == "" {
			t.Fatal("token missing")
		}
		t.Logf("Admin Token received")
	})

	// Step 2: Seed the question bank (Admin)
	t.Run("SaveQuestions", func(t *testing.T) {
		questions := []model.SaveQuestionRequest{
			{Text: "HTML stands for?", Options: []string{"Hyperlinks Text Markup", "Home Tool Markup", "Hyper Text Markup Language", "Hyperlinking Text Markdown"}, CorrectIndex: 2, Marks: 1, Category: model.CategorySynopsis},
			{Text: "Which tag defines paragraph?", Options: []string{"<p>", "<para>", "<pg>", "<par>"}, CorrectIndex: 0, Marks: 1, Category: model.CategoryMinorPractical},
			{Text: "Which method adds to array end?", Options: []string{"push", "pop", "shift", "unshift"}, CorrectIndex: 0, Marks: 2, Category: model.CategoryMajorPractical},
			{Text: "Does localStorage persist after browser restart?", Options: []string{"Yes", "No", "Sometimes", "Depends"}, CorrectIndex: 0, Marks: 1, Category: model.CategoryViva},
		}
		for _, q := range questions {
			resp, err := post("/api/v1/admin/questions", q, adminToken)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
				t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
			}
			resp.Body.Close()
		}
		t.Logf("Question bank seeded")
	})

	// Step 3: Configure the exam (Admin)
	t.Run("UpdateSettings", func(t *testing.T) {
		settings := model.DefaultSettings()
		settings.DurationMin = 10
		settings.Counts = map[model.Category]int{
			model.CategorySynopsis:       1,
			model.CategoryMinorPractical: 1,
			model.CategoryMajorPractical: 1,
			model.CategoryViva:           1,
		}
		resp, err := put("/api/v1/admin/settings", settings, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		t.Logf("Settings updated")
	})

	// Step 4: Login as Candidate (unknown user with fullName registers)
	t.Run("CandidateLogin", func(t *testing.T) {
		reqBody := map[string]string{
			"username": candidateName,
			"password": candidatePass,
			"fullName": candidateFull,
		}
		resp, err := post("/api/v1/auth/candidate/login", reqBody, "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Token string `json:"token"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		candidateToken = body.Data.Token
		if candidateToken == "" {
			t.Fatal("candidate token missing")
		}
		t.Logf("Candidate Token received")
	})

	// Step 4b: Second login while first is active (Expect 409)
	t.Run("SecondDeviceRejected", func(t *testing.T) {
		reqBody := map[string]string{
			"username": candidateName,
			"password": candidatePass,
		}
		resp, err := post("/api/v1/auth/candidate/login", reqBody, "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected status 409 Conflict, got %d. Body: %s", resp.StatusCode, readBody(resp))
		} else {
			t.Logf("Second device rejected correctly (409)")
		}
	})

	// Step 5: Candidate tries an admin route (Expect 401/403)
	t.Run("CandidateCannotAdmin", func(t *testing.T) {
		resp, err := get("/api/v1/admin/sessions", candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 403/401, got %d", resp.StatusCode)
		}
	})

	// Step 6: Start the exam (Candidate)
	t.Run("StartExam", func(t *testing.T) {
		resp, err := post("/api/v1/exam/start", nil, candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Phase       string                       `json:"phase"`
				Paper       []model.QuestionForCandidate `json:"paper"`
				RemainingMs int64                        `json:"remainingMs"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)

		if body.Data.Phase != "running" {
			t.Fatalf("expected phase running, got %q", body.Data.Phase)
		}
		if len(body.Data.Paper) != 4 {
			t.Fatalf("expected 4 paper questions, got %d", len(body.Data.Paper))
		}
		if body.Data.RemainingMs <= 0 {
			t.Fatalf("remainingMs should be positive, got %d", body.Data.RemainingMs)
		}
		for _, q := range body.Data.Paper {
			paperIDs = append(paperIDs, q.ID)
		}
		t.Logf("Exam started with %d questions", len(paperIDs))
	})

	// Step 7: Fetch exam state again (reconnect path)
	t.Run("GetExamState", func(t *testing.T) {
		resp, err := get("/api/v1/exam/state", candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Step 8: Answer everything and submit over WebSocket
	t.Run("AnswerAndSubmit", func(t *testing.T) {
		wsURL := strings.Replace(baseURL, "http", "ws", 1) +
			"/ws/v1/exam?token=" + url.QueryEscape(candidateToken)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("websocket dial: %v", err)
		}
		defer conn.Close()

		// Each category holds exactly one seeded question and the paper
		// keeps the fixed section order, so the Synopsis question (the
		// only one whose answer is option 2) is always first.
		answers := map[string]int{}
		for i, id := range paperIDs {
			choice := 0
			if i == 0 {
				choice = 2
			}
			answers[id] = choice
		}

		for id, choice := range answers {
			msg := map[string]interface{}{"action": "answer", "q_id": id, "choice": choice}
			if err := conn.WriteJSON(msg); err != nil {
				t.Fatalf("write answer: %v", err)
			}
		}

		if err := conn.WriteJSON(map[string]string{"action": "submit"}); err != nil {
			t.Fatalf("write submit: %v", err)
		}

		// Read frames until the submitted event arrives.
		deadline := time.Now().Add(10 * time.Second)
		conn.SetReadDeadline(deadline)
		for {
			var frame struct {
				Event   string `json:"event"`
				Percent int    `json:"percent"`
				Error   string `json:"error"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				t.Fatalf("read frame: %v", err)
			}
			if frame.Event == "error" {
				t.Fatalf("server error frame: %s", frame.Error)
			}
			if frame.Event == "submitted" {
				if frame.Percent != 100 {
					t.Errorf("expected 100%%, got %d%%", frame.Percent)
				}
				break
			}
		}
		t.Logf("Submitted with full marks")
	})

	// Step 9: Starting again after submission is refused
	t.Run("RestartRefused", func(t *testing.T) {
		resp, err := post("/api/v1/exam/start", nil, candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected 409 after submission, got %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Step 10: Result shows up for the admin
	t.Run("GetResults", func(t *testing.T) {
		resp, err := get("/api/v1/admin/results", adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Results []model.Result `json:"results"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)

		found := false
		for _, r := range body.Data.Results {
			if r.Username == candidateName {
				found = true
				if r.TotalScorePercent != 100 {
					t.Errorf("expected 100%%, got %d%%", r.TotalScorePercent)
				}
			}
		}
		if !found {
			t.Errorf("Candidate %s not found in results", candidateName)
		}
	})

	// Step 11: Monitor shows the session as submitted
	t.Run("MonitorShowsSubmitted", func(t *testing.T) {
		resp, err := get("/api/v1/admin/sessions", adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Sessions []struct {
					Username  string `json:"username"`
					Submitted bool   `json:"submitted"`
				} `json:"sessions"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)

		for _, s := range body.Data.Sessions {
			if s.Username == candidateName && !s.Submitted {
				t.Errorf("session for %s should be marked submitted", candidateName)
			}
		}
	})
}

// Helpers

func post(path string, body interface{}, token string) (*http.Response, error) {
	return request("POST", path, body, token)
}

func put(path string, body interface{}, token string) (*http.Response, error) {
	return request("PUT", path, body, token)
}

func get(path string, token string) (*http.Response, error) {
	return request("GET", path, nil, token)
}

func request(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
