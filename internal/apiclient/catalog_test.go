package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presensi/internal/meeting"
)

type catalogCalls struct {
	course   map[string]any
	courseAt string
	class    map[string]any
	enroll   map[string]any
}

func newCatalogServer(t *testing.T) (*httptest.Server, *catalogCalls) {
	t.Helper()
	calls := &catalogCalls{}
	mux := http.NewServeMux()
	decode := func(r *http.Request) map[string]any {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		return body
	}
	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			calls.course, calls.courseAt = decode(r), r.URL.Path
			w.WriteHeader(http.StatusCreated)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"courses":[{"id":1,"code":"CS101","name":"Pemrograman Dasar","semester":"ganjil","academic_year":"2024"}]}}`))
	})
	mux.HandleFunc("/courses/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		calls.course, calls.courseAt = decode(r), r.URL.Path
	})
	mux.HandleFunc("/classes/by-course/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"classes":[{"id":3,"name":"A"},{"id":4,"name":"B"}]}}`))
	})
	mux.HandleFunc("/classes/by-course/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"Mata kuliah tidak ditemukan"}`))
	})
	mux.HandleFunc("/classes/create", func(w http.ResponseWriter, r *http.Request) {
		calls.class = decode(r)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[
		  {"id":1,"username":"john","name":"John Doe","nim":"111","role":"student","password":"x"},
		  {"name":"no id"}
		]}`))
	})
	mux.HandleFunc("/user/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":1,"username":"john","name":"John Doe","nim":"111","email":"john@kampus.ac.id","phone":"0812","password":"x"}}`))
	})
	mux.HandleFunc("/user/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/class-students/add", func(w http.ResponseWriter, r *http.Request) {
		calls.enroll = decode(r)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestCourses(t *testing.T) {
	srv, calls := newCatalogServer(t)
	c := authedClient(t, srv.URL)
	ctx := context.Background()

	courses, err := c.Courses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "CS101", courses[0].Code)

	in := CourseInput{Name: "Struktur Data", Code: "CS102", AcademicYear: "2024", Semester: "genap"}
	require.NoError(t, c.CreateCourse(ctx, in))
	assert.Equal(t, "/courses", calls.courseAt)
	assert.Equal(t, "CS102", calls.course["course_id"], "code is sent as course_id")

	require.NoError(t, c.UpdateCourse(ctx, 1, in))
	assert.Equal(t, "/courses/1", calls.courseAt)

	in.Semester = "pendek"
	assert.ErrorIs(t, c.CreateCourse(ctx, in), ErrInvalidRequest)
	assert.ErrorIs(t, c.UpdateCourse(ctx, 0, CourseInput{}), ErrInvalidRequest)
}

func TestClasses(t *testing.T) {
	srv, calls := newCatalogServer(t)
	c := authedClient(t, srv.URL)
	ctx := context.Background()

	classes, err := c.ClassesByCourse(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []meeting.Class{{ID: 3, Name: "A"}, {ID: 4, Name: "B"}}, classes)

	_, err = c.ClassesByCourse(ctx, 2)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Mata kuliah tidak ditemukan", apiErr.Message)

	require.NoError(t, c.CreateClass(ctx, 1))
	assert.Equal(t, float64(1), calls.class["course_id"])
	assert.ErrorIs(t, c.CreateClass(ctx, 0), ErrInvalidRequest)
}

func TestUsersAndEnroll(t *testing.T) {
	srv, calls := newCatalogServer(t)
	c := authedClient(t, srv.URL)
	ctx := context.Background()

	users, err := c.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1, "account without id is dropped")
	assert.Equal(t, meeting.Student{ID: 1, NIM: "111", Name: "John Doe"}, users[0].Student())

	u, err := c.User(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "john@kampus.ac.id", u.Email)
	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "password")

	_, err = c.User(ctx, 2)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	require.NoError(t, c.EnrollStudents(ctx, 3, []int64{1, 2}))
	assert.Equal(t, float64(3), calls.enroll["class_id"])
	assert.Equal(t, []any{float64(1), float64(2)}, calls.enroll["student_ids"])
	assert.ErrorIs(t, c.EnrollStudents(ctx, 3, nil), ErrInvalidRequest)
}
