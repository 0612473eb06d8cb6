package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presensi/internal/apiclient"
	"presensi/internal/attendance"
	"presensi/internal/queue"
	"presensi/internal/store"
)

const upstreamHistory = `{"status":"success","data":{"history":[
  {"id":1,"status":"Hadir","meeting":{"id":10,"date":"2024-03-18","start_time":"08:00","end_time":"10:00"},
   "student":{"id":1,"nim":"111","name":"John Doe"},
   "course":{"name":"Basis Data","semester":"ganjil","academic_year":"2024"},"class":{"name":"A"}},
  {"id":2,"status":"Terlambat","meeting":{"id":10,"date":"2024-03-18","start_time":"08:00","end_time":"10:00"},
   "student":{"id":2,"nim":"222","name":"Jane Smith"},
   "course":{"name":"Basis Data","semester":"ganjil","academic_year":"2024"},"class":{"name":"A"}},
  {"id":3,"status":"Tidak Hadir","meeting":{"id":11,"date":"2024-03-19","start_time":"08:00","end_time":"10:00"},
   "student":{"id":1,"nim":"111","name":"John Doe"},
   "course":{"name":"Pemrograman Web","semester":"genap","academic_year":"2024"},"class":{"name":"B"}}
]}}`

func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	users := map[string]string{
		"tok-admin": `{"id":1,"username":"admin","name":"Admin","role":"admin"}`,
		"tok-mhs":   `{"id":2,"username":"john","name":"John Doe","role":"student","nim":"111"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body["password"] != "secret":
			w.WriteHeader(http.StatusUnauthorized)
		case body["username"] == "admin":
			_, _ = w.Write([]byte(`{"access_token":"tok-admin"}`))
		default:
			_, _ = w.Write([]byte(`{"access_token":"tok-mhs"}`))
		}
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, ok := users[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]; !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/user/profile", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(users[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]))
	}))
	mux.HandleFunc("/admin/history", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(upstreamHistory))
	}))
	mux.HandleFunc("/meetings/by-class/3", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meetings":[
		  {"id":11,"date":"2024-03-19","start_time":"08:00","end_time":"10:00"},
		  {"id":10,"date":"2024-03-18","start_time":"08:00","end_time":"10:00",
		   "class":{"name":"A","course":{"name":"Basis Data"}}}
		]}`))
	}))
	mux.HandleFunc("/meetings/create", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		body["id"] = 12
		_ = json.NewEncoder(w).Encode(map[string]any{"meeting": body})
	}))
	mux.HandleFunc("/class-students/by-class/3", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"students":[{"id":1,"nim":"111","name":"John Doe"},{"id":2,"nim":"222","name":"Jane Smith"}]}`))
	}))
	mux.HandleFunc("/courses", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		_, _ = w.Write([]byte(`{"courses":[{"id":1,"code":"CS101","name":"Basis Data"},{"id":2,"code":"CS102","name":"Pemrograman Web"}]}`))
	}))
	mux.HandleFunc("/classes/by-course/1", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"classes":[{"id":3,"name":"A"}]}}`))
	}))
	mux.HandleFunc("/user", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[
		  {"id":1,"nim":"111","name":"John Doe","role":"student"},
		  {"id":2,"nim":"222","name":"Jane Smith","role":"student"},
		  {"id":5,"nim":"555","name":"Budi Santoso","role":"student"},
		  {"id":9,"name":"Admin","role":"admin"}
		]}`))
	}))
	mux.HandleFunc("/user/5", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":5,"nim":"555","name":"Budi Santoso","email":"budi@kampus.ac.id","password":"rahasia"}}`))
	}))
	mux.HandleFunc("/class-students/add", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	router *gin.Engine
	queue  *queue.InMemory
}

func newEnv(t *testing.T) env {
	t.Helper()
	q := queue.NewInMemory(4)
	e := newEnvWithQueue(t, q)
	e.queue = q
	return e
}

// newEnvWithQueue builds the router around q, which may be nil.
func newEnvWithQueue(t *testing.T, q queue.Queue) env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := fakeUpstream(t)
	tokens := store.NewMemoryTokens()
	client := apiclient.New(srv.URL, time.Second, tokens, nil)
	svc := attendance.NewService(func(key string) attendance.Source { return client.As(key) }, time.UTC, nil)

	h := &Handler{
		Service:    svc,
		Client:     client,
		Tokens:     tokens,
		Queue:      q,
		SigningKey: "test-key",
		Issuer:     "presensi-test",
		SessionTTL: time.Hour,
		Now:        func() time.Time { return time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC) },
	}
	r := gin.New()
	h.Register(r, nil)
	return env{router: r}
}

func (e env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e env) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"`+username+`","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/v1/auth/login", "", `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tok := e.login(t, "admin")
	w = e.do(t, http.MethodGet, "/v1/me", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
}

func TestSchedule(t *testing.T) {
	e := newEnv(t)
	tok := e.login(t, "john")

	w := e.do(t, http.MethodGet, "/v1/classes/3/meetings", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Meetings []struct {
			ID          int64  `json:"id"`
			Status      string `json:"status"`
			StatusLabel string `json:"status_label"`
		} `json:"meetings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Meetings, 2)
	assert.Equal(t, int64(10), resp.Meetings[0].ID)
	assert.Equal(t, "in_progress", resp.Meetings[0].Status)
	assert.Equal(t, "Sedang Berlangsung", resp.Meetings[0].StatusLabel)
	assert.Equal(t, "not_started", resp.Meetings[1].Status)

	w = e.do(t, http.MethodGet, "/v1/classes/3/meetings?day=selasa", tok, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Meetings, 1)
	assert.Equal(t, int64(11), resp.Meetings[0].ID)

	w = e.do(t, http.MethodGet, "/v1/classes/abc/meetings", tok, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistory(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, "admin")
	student := e.login(t, "john")

	w := e.do(t, http.MethodGet, "/v1/history?semester=ganjil&q=jane", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	var res attendance.HistoryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(2), res.Records[0].ID)
	assert.Equal(t, []string{"ganjil", "genap"}, res.Facets.Semesters)

	w = e.do(t, http.MethodGet, "/v1/history", student, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/v1/me/history?sort=asc", student, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Records, 2)
	assert.Equal(t, int64(1), res.Records[0].ID)
	assert.Equal(t, 1, res.Summary.Absent)

	w = e.do(t, http.MethodGet, "/v1/me/history", admin, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStudents(t *testing.T) {
	e := newEnv(t)
	tok := e.login(t, "admin")

	w := e.do(t, http.MethodGet, "/v1/classes/3/students?q=jane", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Jane Smith")
	assert.NotContains(t, w.Body.String(), "John Doe")
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	tok := e.login(t, "admin")

	w := e.do(t, http.MethodGet, "/v1/classes/3/meetings/10/export?format=csv", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="kehadiran_Basis_Data_2024-03-18.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "NIM,Nama,Status,Waktu\n111,John Doe,Hadir,-\n222,Jane Smith,Terlambat,-\n", w.Body.String())

	w = e.do(t, http.MethodGet, "/v1/classes/3/meetings/99/export", tok, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/v1/classes/3/meetings/10/export?format=pdf", tok, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMeetingAndSync(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, "admin")
	student := e.login(t, "john")

	body := `{"date":"2024-03-26","start_time":"08:00","end_time":"10:00"}`
	w := e.do(t, http.MethodPost, "/v1/classes/3/meetings", student, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/v1/classes/3/meetings", admin, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"id":12`)

	w = e.do(t, http.MethodPost, "/v1/classes/3/meetings", admin, `{"start_time":"08:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "meeting without a date")

	w = e.do(t, http.MethodPost, "/v1/sync/history", admin, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	jobs, err := e.queue.Consume(ctx)
	require.NoError(t, err)
	first, second := <-jobs, <-jobs
	assert.Equal(t, queue.KindSyncClass, first.Kind)
	assert.Equal(t, int64(3), first.ClassID)
	assert.Equal(t, queue.KindSyncHistory, second.Kind)
	assert.NotEmpty(t, second.UserKey)
}

func TestSync_WithoutQueue(t *testing.T) {
	e := newEnvWithQueue(t, nil)
	admin := e.login(t, "admin")

	w := e.do(t, http.MethodPost, "/v1/sync/history", admin, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = e.do(t, http.MethodPost, "/v1/sync/classes/3", admin, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := `{"date":"2024-03-26","start_time":"08:00","end_time":"10:00"}`
	w = e.do(t, http.MethodPost, "/v1/classes/3/meetings", admin, body)
	assert.Equal(t, http.StatusCreated, w.Code, "meeting creation does not need the queue")
}

func TestSync_FullQueueDoesNotBlock(t *testing.T) {
	e := newEnvWithQueue(t, queue.NewInMemory(1))
	admin := e.login(t, "admin")

	w := e.do(t, http.MethodPost, "/v1/sync/history", admin, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			w := e.do(t, http.MethodPost, "/v1/sync/history", admin, "")
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		}
		body := `{"date":"2024-03-26","start_time":"08:00","end_time":"10:00"}`
		w := e.do(t, http.MethodPost, "/v1/classes/3/meetings", admin, body)
		assert.Equal(t, http.StatusCreated, w.Code)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("requests blocked on a full queue")
	}
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	tok := e.login(t, "admin")

	w := e.do(t, http.MethodPost, "/v1/auth/logout", tok, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/v1/history", tok, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "upstream token is gone")
}

func TestCatalog(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, "admin")
	student := e.login(t, "john")

	w := e.do(t, http.MethodGet, "/v1/courses", student, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/v1/courses?q=cs102", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pemrograman Web")
	assert.NotContains(t, w.Body.String(), "Basis Data")

	course := `{"name":"Jaringan","course_id":"CS201","academic_year":"2024","semester":"ganjil"}`
	w = e.do(t, http.MethodPost, "/v1/courses", admin, course)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/v1/courses", admin, `{"name":"Jaringan"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/v1/courses/1/classes", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"A"`)

	w = e.do(t, http.MethodGet, "/v1/students/5", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "budi@kampus.ac.id")
	assert.NotContains(t, w.Body.String(), "rahasia")
}

func TestEnrollment(t *testing.T) {
	e := newEnv(t)
	admin := e.login(t, "admin")

	w := e.do(t, http.MethodGet, "/v1/classes/3/available-students", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Students []struct {
			ID int64 `json:"id"`
		} `json:"students"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Students, 1, "enrolled students and admins are left out")
	assert.Equal(t, int64(5), resp.Students[0].ID)

	w = e.do(t, http.MethodPost, "/v1/classes/3/students", admin, `{"student_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/classes/3/students", admin, `{"student_ids":[5]}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	jobs, err := e.queue.Consume(ctx)
	require.NoError(t, err)
	job := <-jobs
	assert.Equal(t, queue.KindSyncClass, job.Kind, "roster change schedules a class sync")
	assert.Equal(t, int64(3), job.ClassID)
}
