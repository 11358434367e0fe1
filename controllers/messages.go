package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"chatboard/middleware"
	"chatboard/pkg/services"
	"chatboard/pkg/store"
	"chatboard/pkg/validation"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20 // 1MB

func ListMessages(svc *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, "list", err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

func CreateMessage(svc *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := svc.Create(c.Request.Context(), readBody(c), middleware.ClientIP(c))
		if err != nil {
			writeError(c, "create", err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

func GetMessage(svc *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := messageID(c)
		if !ok {
			return
		}
		m, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, "get", err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func UpdateMessage(svc *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := messageID(c)
		if !ok {
			return
		}
		m, err := svc.Update(c.Request.Context(), id, readBody(c), middleware.ClientIP(c))
		if err != nil {
			writeError(c, "update", err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

func DeleteMessage(svc *services.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := messageID(c)
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), id); err != nil {
			writeError(c, "delete", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// readBody decodes the request as a JSON object. Anything that is not one
// reads as an empty object so validation reports the missing fields.
func readBody(c *gin.Context) map[string]any {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

// messageID parses the :id path parameter; ids that cannot exist are 404.
// Stored ids are signed 64-bit, so anything past MaxInt64 is rejected here.
func messageID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 63)
	if err != nil || id == 0 {
		c.AbortWithStatus(http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, op string, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": verr.Error(), "errors": verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatus(http.StatusNotFound)
	default:
		log.Printf("[messages] %s failed (request %s): %v", op, c.GetString(middleware.ContextRequestIDKey), err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
	}
}
