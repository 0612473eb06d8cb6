package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"presensi/internal/apiclient"
	"presensi/internal/auth"
	"presensi/internal/meeting"
	"presensi/internal/queue"
)

// registerCatalog mounts the admin course, class and enrollment routes.
func (h *Handler) registerCatalog(admin gin.IRouter) {
	admin.GET("/courses", h.courses)
	admin.POST("/courses", h.createCourse)
	admin.PUT("/courses/:id", h.updateCourse)
	admin.GET("/courses/:id/classes", h.classes)
	admin.POST("/courses/:id/classes", h.createClass)
	admin.GET("/classes/:id/available-students", h.availableStudents)
	admin.POST("/classes/:id/students", h.enroll)
	admin.GET("/students/:id", h.student)
}

func (h *Handler) courses(c *gin.Context) {
	items, err := h.upstream(c).Courses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": meeting.SearchByText(items, c.Query("q"), []string{"name", "code"})})
}

func (h *Handler) createCourse(c *gin.Context) {
	var in apiclient.CourseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.upstream(c).CreateCourse(c.Request.Context(), in); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) updateCourse(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in apiclient.CourseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.upstream(c).UpdateCourse(c.Request.Context(), id, in); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) classes(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.upstream(c).ClassesByCourse(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": items})
}

func (h *Handler) createClass(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.upstream(c).CreateClass(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// availableStudents lists student accounts not yet enrolled in the class.
func (h *Handler) availableStudents(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	up := h.upstream(c)
	accounts, err := up.Users(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	enrolled, err := up.StudentsByClass(c.Request.Context(), classID)
	if err != nil {
		h.fail(c, err)
		return
	}
	all := make([]meeting.Student, 0, len(accounts))
	for _, a := range accounts {
		if a.Role != auth.RoleAdmin {
			all = append(all, a.Student())
		}
	}
	free := meeting.AvailableStudents(all, enrolled)
	c.JSON(http.StatusOK, gin.H{"students": meeting.SearchByText(free, c.Query("q"), []string{"name", "nim"})})
}

type enrollRequest struct {
	StudentIDs []int64 `json:"student_ids" binding:"required,min=1"`
}

func (h *Handler) enroll(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student_ids required"})
		return
	}
	if err := h.upstream(c).EnrollStudents(c.Request.Context(), classID, req.StudentIDs); err != nil {
		h.fail(c, err)
		return
	}
	h.enqueue(c.Request.Context(), queue.NewJob(queue.KindSyncClass, sessionKey(c), classID, h.Now()))
	c.Status(http.StatusNoContent)
}

func (h *Handler) student(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	a, err := h.upstream(c).User(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
