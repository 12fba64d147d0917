package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/studygroup/backend/database"
	"github.com/studygroup/backend/models"
	"github.com/studygroup/backend/pagination"
	"github.com/studygroup/backend/ratelimit"
	"github.com/studygroup/backend/websocket"
)

type CreateMessageInput struct {
	Content string `json:"content" binding:"required" example:"Hello, everyone!"`
}

type UpdateMessageInput struct {
	Content string `json:"content" binding:"required" example:"Hello, everyone! (edited)"`
}

const (
	maxMessageLength = 1000

	// editWindow is how long after creation a sender may still edit a message
	editWindow = 5 * time.Minute
)

var (
	errEmptyContent   = errors.New("Message content cannot be empty")
	errContentTooLong = errors.New("Message content must be at most 1000 characters")
)

// messageLimiter gates message posting per user. main replaces it with a
// limiter built from the environment; the default keeps tests and tools
// working without extra setup.
var messageLimiter = ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow)

// SetMessageLimiter installs the limiter used for message posting
func SetMessageLimiter(l *ratelimit.Limiter) {
	messageLimiter = l
}

// normalizeContent trims surrounding whitespace and enforces the 1-1000
// character bounds
func normalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		return "", errContentTooLong
	}
	return trimmed, nil
}

// editableAt reports whether a message created at createdAt may still be
// edited at now
func editableAt(createdAt, now time.Time) bool {
	return now.Sub(createdAt) <= editWindow
}

// requireParticipant loads the caller's membership row for a room
func requireParticipant(c *gin.Context, roomID uint64, userID uint) bool {
	var roomUser models.RoomUser
	if err := database.DB.Where("room_id = ? AND user_id = ?", roomID, userID).First(&roomUser).Error; err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not a participant of this room"})
		return false
	}
	return true
}

// CreateMessage godoc
// @Summary Post a message to a room
// @Description Appends a message; the caller must be a participant and is rate limited
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Param message body CreateMessageInput true "Message Creation"
// @Success 201 {object} map[string]interface{} "Message sent successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Not a participant"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 429 {object} map[string]interface{} "Rate limit exceeded"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/message [post]
func CreateMessage(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, err := normalizeContent(input.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var room models.Room
	if err := database.DB.First(&room, roomID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	if !requireParticipant(c, roomID, userID) {
		return
	}

	if ok, retryAfter := messageLimiter.Allow(userID); !ok {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many messages, slow down",
			"retry_after": seconds,
		})
		return
	}

	message := models.Message{
		Content: content,
		RoomID:  uint(roomID),
		UserID:  userID,
	}

	if err := database.DB.Create(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create message"})
		return
	}

	// Load sender data for the response and broadcast
	database.DB.Preload("User").First(&message, message.ID)

	websocket.BroadcastToRoom(uint(roomID), "message", message)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent successfully",
		"data":    message,
	})
}

// UpdateMessage godoc
// @Summary Edit a message
// @Description Only the sender may edit, and only within 5 minutes of posting
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Param mid path int true "Message ID"
// @Param message body UpdateMessageInput true "Message Update"
// @Success 200 {object} map[string]interface{} "Message updated successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Not the sender or too old"
// @Failure 404 {object} map[string]string "Message not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/messages/{mid} [put]
func UpdateMessage(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	messageID, err := strconv.ParseUint(c.Param("mid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	var input UpdateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, err := normalizeContent(input.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var message models.Message
	if err := database.DB.Where("id = ? AND room_id = ?", messageID, roomID).First(&message).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}

	if message.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender can edit a message"})
		return
	}

	if !editableAt(message.CreatedAt, time.Now()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Messages can only be edited within 5 minutes of posting"})
		return
	}

	now := time.Now()
	message.Content = content
	message.EditedAt = &now

	if err := database.DB.Save(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update message"})
		return
	}

	database.DB.Preload("User").First(&message, message.ID)

	websocket.BroadcastToRoom(uint(roomID), "message_edited", message)

	c.JSON(http.StatusOK, gin.H{
		"message": "Message updated successfully",
		"data":    message,
	})
}

// DeleteMessage godoc
// @Summary Delete a message
// @Description The sender or the room creator may remove a message
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Param mid path int true "Message ID"
// @Success 200 {object} map[string]string "Message deleted successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Not allowed"
// @Failure 404 {object} map[string]string "Message not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/messages/{mid} [delete]
func DeleteMessage(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}
	messageID, err := strconv.ParseUint(c.Param("mid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	var room models.Room
	if err := database.DB.First(&room, roomID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	var message models.Message
	if err := database.DB.Where("id = ? AND room_id = ?", messageID, roomID).First(&message).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}

	if message.UserID != userID && room.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender or the room creator can delete a message"})
		return
	}

	if err := database.DB.Delete(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}

	websocket.BroadcastToRoom(uint(roomID), "message_deleted", gin.H{
		"room_id":    roomID,
		"message_id": messageID,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
}

// GetMessages godoc
// @Summary Get a page of a room's messages
// @Description Returns messages oldest-first within the page; page 1 holds the newest chunk
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Param page query int false "Page number (default 1)"
// @Param limit query int false "Page size (default 50, max 100)"
// @Success 200 {object} map[string]interface{} "Messages and paging info"
// @Failure 400 {object} map[string]string "Invalid room ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Not a participant"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/messages [get]
func GetMessages(c *gin.Context) {
	userID := c.MustGet("userID").(uint)
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	var room models.Room
	if err := database.DB.First(&room, roomID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	if !requireParticipant(c, roomID, userID) {
		return
	}

	var messages []models.Message
	if err := database.DB.Where("room_id = ?", roomID).
		Preload("User").
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	params := pagination.ParseParams(c.Query("page"), c.Query("limit"))
	page, meta := pagination.Page(messages, params)

	c.JSON(http.StatusOK, gin.H{
		"messages":   page,
		"pagination": meta,
	})
}
