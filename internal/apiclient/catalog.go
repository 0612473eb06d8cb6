package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"presensi/internal/meeting"
)

// Account is a user as listed by the admin user endpoints. The upstream also
// returns the password; it is never decoded.
type Account struct {
	ID       int64  `json:"id" validate:"required"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	NIM      string `json:"nim,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Student returns the roster view of a.
func (a Account) Student() meeting.Student {
	return meeting.Student{ID: a.ID, NIM: a.NIM, Name: a.Name}
}

// Courses lists every course. Both {"courses": [...]} and the
// {"data": {"courses": [...]}} envelope are accepted.
func (c *Client) Courses(ctx context.Context) ([]meeting.Course, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Courses []meeting.Course `json:"courses"`
		Data    struct {
			Courses []meeting.Course `json:"courses"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/courses", "courses", tok, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Courses == nil {
		resp.Courses = resp.Data.Courses
	}
	return keepValid(c, "course", resp.Courses), nil
}

// CourseInput is the payload for creating or editing a course. The upstream
// names the course code course_id.
type CourseInput struct {
	Name         string `json:"name" validate:"required"`
	Code         string `json:"course_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Semester     string `json:"semester" validate:"required,oneof=ganjil genap"`
}

// CreateCourse adds a course.
func (c *Client) CreateCourse(ctx context.Context, in CourseInput) error {
	return c.writeCourse(ctx, http.MethodPost, "/courses", "create_course", in)
}

// UpdateCourse edits the course with the given id.
func (c *Client) UpdateCourse(ctx context.Context, id int64, in CourseInput) error {
	if id <= 0 {
		return fmt.Errorf("%w: course id required", ErrInvalidRequest)
	}
	return c.writeCourse(ctx, http.MethodPut, "/courses/"+strconv.FormatInt(id, 10), "update_course", in)
}

func (c *Client) writeCourse(ctx context.Context, method, path, endpoint string, in CourseInput) error {
	if err := c.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: course: %v", ErrInvalidRequest, err)
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, endpoint, tok, in, nil)
}

// ClassesByCourse lists the classes opened for a course.
func (c *Client) ClassesByCourse(ctx context.Context, courseID int64) ([]meeting.Class, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Classes []meeting.Class `json:"classes"`
		} `json:"data"`
	}
	path := "/classes/by-course/" + strconv.FormatInt(courseID, 10)
	if err := c.do(ctx, http.MethodGet, path, "classes_by_course", tok, nil, &resp); err != nil {
		return nil, err
	}
	if err := statusError(resp.Status, resp.Message); err != nil {
		return nil, err
	}
	return resp.Data.Classes, nil
}

// CreateClass opens a new class for a course. The upstream names it.
func (c *Client) CreateClass(ctx context.Context, courseID int64) error {
	if courseID <= 0 {
		return fmt.Errorf("%w: course id required", ErrInvalidRequest)
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	in := map[string]int64{"course_id": courseID}
	if err := c.do(ctx, http.MethodPost, "/classes/create", "create_class", tok, in, &resp); err != nil {
		return err
	}
	return statusError(resp.Status, resp.Message)
}

// Users lists every account.
func (c *Client) Users(ctx context.Context) ([]Account, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Users []Account `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", "users", tok, nil, &resp); err != nil {
		return nil, err
	}
	return keepValid(c, "user", resp.Users), nil
}

// User loads one account.
func (c *Client) User(ctx context.Context, id int64) (Account, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return Account{}, err
	}
	var resp struct {
		User *Account `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/"+strconv.FormatInt(id, 10), "user", tok, nil, &resp); err != nil {
		return Account{}, err
	}
	if resp.User == nil {
		return Account{}, &APIError{StatusCode: http.StatusNotFound, Message: "user not found"}
	}
	return *resp.User, nil
}

// EnrollStudents adds students to a class roster.
func (c *Client) EnrollStudents(ctx context.Context, classID int64, studentIDs []int64) error {
	if classID <= 0 || len(studentIDs) == 0 {
		return fmt.Errorf("%w: class id and at least one student required", ErrInvalidRequest)
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}
	in := struct {
		ClassID    int64   `json:"class_id"`
		StudentIDs []int64 `json:"student_ids"`
	}{classID, studentIDs}
	return c.do(ctx, http.MethodPost, "/class-students/add", "enroll_students", tok, in, nil)
}

// statusError turns a {"status": "error"} body into an APIError. An empty
// status counts as success.
func statusError(status, message string) error {
	if status == "" || status == "success" {
		return nil
	}
	return &APIError{StatusCode: http.StatusOK, Message: firstNonEmpty(message, status)}
}
