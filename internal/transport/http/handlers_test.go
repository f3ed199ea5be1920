package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/auth"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine

	mu    sync.Mutex
	clock time.Time
}

func (a *testAPI) now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clock
}

func (a *testAPI) advance(d time.Duration) {
	a.mu.Lock()
	a.clock = a.clock.Add(d)
	a.mu.Unlock()
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	api := &testAPI{t: t, clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	broker := memory.NewBroker()
	service := app.NewContestService(memory.NewStore(),
		app.WithClock(api.now),
		app.WithLogger(zaptest.NewLogger(t)),
		app.WithNotifier(broker),
		app.WithEventSubscriber(broker))
	api.router = NewRouter(service, auth.NewHeaderResolver("X-User-ID"))
	return api
}

func (a *testAPI) do(method, path, user string, body any) (int, Response) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

// decode re-marshals the envelope data into out.
func decode(t *testing.T, data any, out any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func (a *testAPI) liveContest(users ...string) domain.Contest {
	a.t.Helper()
	code, resp := a.do("POST", "/api/v1/contests", "owner", map[string]any{
		"title":         "Friday",
		"questionIds":   []string{"q1", "q2", "q3"},
		"durationInMin": 30,
		"visibility":    "shared",
	})
	if code != http.StatusCreated {
		a.t.Fatalf("create contest: %d %s", code, resp.Message)
	}
	var contest domain.Contest
	decode(a.t, resp.Data, &contest)
	for _, u := range users {
		if code, resp := a.do("POST", "/api/v1/contests/join", u, map[string]string{"contest": contest.JoinCode}); code != http.StatusOK {
			a.t.Fatalf("join %s: %d %s", u, code, resp.Message)
		}
	}
	if code, resp := a.do("POST", "/api/v1/contests/"+contest.ID+"/start", "owner", nil); code != http.StatusOK {
		a.t.Fatalf("start: %d %s", code, resp.Message)
	}
	return contest
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequiresIdentity(t *testing.T) {
	api := newTestAPI(t)
	code, resp := api.do("GET", "/api/v1/users/me/stats", "", nil)
	if code != http.StatusUnauthorized || resp.Code != -1 {
		t.Fatalf("expected 401, got %d %+v", code, resp)
	}
}

func TestSubmitFlow(t *testing.T) {
	api := newTestAPI(t)
	contest := api.liveContest("u1")
	base := "/api/v1/contests/" + contest.ID

	code, resp := api.do("POST", base+"/live", "u1", nil)
	if code != http.StatusOK {
		t.Fatalf("live: %d %s", code, resp.Message)
	}
	var window domain.LiveWindow
	decode(t, resp.Data, &window)
	if len(window.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %+v", window)
	}

	api.advance(7 * time.Minute)
	body := `{"attempts":[
		{"questionId":"q1","status":"solved","timeSpent":"120"},
		{"questionId":"q2","status":"unsolved","timeSpent":300},
		{"questionId":"q3","status":"unsolved","timeSpent":"abc"}
	]}`
	code, resp = api.do("POST", base+"/submit", "u1", body)
	if code != http.StatusOK {
		t.Fatalf("submit: %d %s", code, resp.Message)
	}
	var outcome app.SubmitOutcome
	decode(t, resp.Data, &outcome)
	if !outcome.Applied || outcome.Result.Score != 58 || outcome.Result.TimeTaken != 420 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	code, resp = api.do("POST", base+"/submit", "u1", nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 on second submit, got %d %s", code, resp.Message)
	}

	code, resp = api.do("GET", base+"/rank", "u1", nil)
	if code != http.StatusOK {
		t.Fatalf("rank: %d %s", code, resp.Message)
	}
	var rank domain.RankResult
	decode(t, resp.Data, &rank)
	if rank.Rank != 1 || rank.TotalParticipants != 1 {
		t.Fatalf("unexpected rank %+v", rank)
	}

	code, resp = api.do("GET", base+"/leaderboard?limit=5", "someone", nil)
	if code != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", code, resp.Message)
	}
	var board domain.Leaderboard
	decode(t, resp.Data, &board)
	if board.Total != 1 || board.Limit != 5 || board.Entries[0].UserID != "u1" {
		t.Fatalf("unexpected board %+v", board)
	}

	code, resp = api.do("GET", "/api/v1/users/me/stats", "u1", nil)
	var stats domain.UserStats
	decode(t, resp.Data, &stats)
	if code != http.StatusOK || stats.TotalContests != 1 || stats.TotalTimeSpent != 420 {
		t.Fatalf("unexpected stats %d %+v", code, stats)
	}
}

func TestErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	contest := api.liveContest("u1")
	base := "/api/v1/contests/" + contest.ID

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
	}{
		{"unknown contest", "GET", "/api/v1/contests/nope", "u1", nil, http.StatusNotFound},
		{"join live contest", "POST", "/api/v1/contests/join", "u2", map[string]string{"contest": contest.ID}, http.StatusForbidden},
		{"submit before entering", "POST", base + "/submit", "u1", nil, http.StatusForbidden},
		{"not owner", "POST", base + "/end", "u1", nil, http.StatusForbidden},
		{"rank before submit", "GET", base + "/rank", "u1", nil, http.StatusNotFound},
		{"invalid contest", "POST", "/api/v1/contests", "owner", map[string]any{"title": "x"}, http.StatusBadRequest},
		{"malformed json", "POST", "/api/v1/contests/join", "u1", "{", http.StatusBadRequest},
		{"enter without joining", "POST", base + "/live", "stranger", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		code, resp := api.do(tc.method, tc.path, tc.user, tc.body)
		if code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, code, resp.Message)
		}
		if resp.Code != -1 || resp.Message == "" {
			t.Fatalf("%s: expected error envelope, got %+v", tc.name, resp)
		}
	}
}

func TestSubmitUnknownQuestionIsBadRequest(t *testing.T) {
	api := newTestAPI(t)
	contest := api.liveContest("u1")
	base := "/api/v1/contests/" + contest.ID
	api.do("POST", base+"/live", "u1", nil)

	code, _ := api.do("POST", base+"/submit", "u1", `{"attempts":[{"questionId":"zz","status":"solved","timeSpent":1}]}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	code, resp := api.do("GET", base+"/attempts", "u1", nil)
	var attempts []domain.Attempt
	decode(t, resp.Data, &attempts)
	if code != http.StatusOK || len(attempts) != 3 || attempts[0].Status != domain.AttemptUnsolved {
		t.Fatalf("ledger must be unchanged: %d %+v", code, attempts)
	}
}

func TestFlexSeconds(t *testing.T) {
	cases := map[string]int{
		`12`:                    12,
		`"45"`:                  45,
		`"7.9"`:                 7,
		`"abc"`:                 0,
		`null`:                  0,
		`true`:                  0,
		`{"a":1}`:               0,
		`-3`:                    0,
		`"NaN"`:                 0,
		`1e300`:                 domain.MaxTimeSpent,
		`"9223372036854775807"`: domain.MaxTimeSpent,
		`-1e300`:                0,
		`1e400`:                 0,
	}
	for raw, want := range cases {
		var p attemptPayload
		if err := json.Unmarshal([]byte(`{"timeSpent":`+raw+`}`), &p); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if int(p.TimeSpent) != want {
			t.Fatalf("%s: got %d want %d", raw, p.TimeSpent, want)
		}
	}
}

func TestClientExpirySubmitWaitsForDeadline(t *testing.T) {
	api := newTestAPI(t)
	contest := api.liveContest("u1")
	base := "/api/v1/contests/" + contest.ID
	api.do("POST", base+"/live", "u1", nil)

	code, resp := api.do("POST", base+"/submit", "u1", `{"auto":true}`)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 before the deadline, got %d %s", code, resp.Message)
	}

	api.advance(31 * time.Minute)
	code, resp = api.do("POST", base+"/submit", "u1", `{"auto":true,"attempts":[{"questionId":"q1","status":"solved","timeSpent":5}]}`)
	if code != http.StatusOK {
		t.Fatalf("expiry submit: %d %s", code, resp.Message)
	}
	var outcome app.SubmitOutcome
	decode(t, resp.Data, &outcome)
	if !outcome.Applied || outcome.Result.SolvedCount != 0 || outcome.Result.TimeTaken != 0 {
		t.Fatalf("expiry submit must tally the stored ledger, got %+v", outcome)
	}
}
