package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/studygroup/backend/database"
	"github.com/studygroup/backend/models"
	"github.com/studygroup/backend/websocket"
	"gorm.io/gorm"
)

type CreateRoomInput struct {
	Name        string `json:"name" binding:"required" example:"Algebra"`
	Description string `json:"description" example:"Linear algebra study group"`
}

type ClearAllRoomsInput struct {
	Confirm string `json:"confirm" binding:"required" example:"delete-all-rooms"`
}

// clearAllConfirmation must be sent verbatim before every room is wiped
const clearAllConfirmation = "delete-all-rooms"

// CreateRoom godoc
// @Summary Create a new study room
// @Description Creates a room with a unique name; the creator becomes its first participant
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param room body CreateRoomInput true "Room Creation"
// @Success 201 {object} map[string]interface{} "Room created successfully"
// @Failure 400 {object} map[string]string "Invalid input or name taken"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/create [post]
func CreateRoom(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	var input CreateRoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}

	// Room names are unique across all rooms
	var existingRoom models.Room
	if result := database.DB.Where("name = ?", name).First(&existingRoom); result.RowsAffected > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name already taken"})
		return
	}

	room := models.Room{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   userID,
	}

	if err := database.DB.Create(&room).Error; err != nil {
		// A concurrent create with the same name slips past the check
		// above and trips the unique constraint instead
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Room name already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	// The creator is always a participant
	roomUser := models.RoomUser{
		RoomID: room.ID,
		UserID: userID,
	}
	if err := database.DB.Create(&roomUser).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add creator to room"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Room created successfully",
		"room":    room,
	})
}

// GetRooms godoc
// @Summary List all study rooms
// @Description Returns every room so users can discover and join them
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "List of rooms"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms [get]
func GetRooms(c *gin.Context) {
	var rooms []models.Room
	if err := database.DB.Preload("Users").Order("created_at ASC").Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetRoom godoc
// @Summary Get details of a specific room
// @Description Returns one room with its participants
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]interface{} "Room details"
// @Failure 400 {object} map[string]string "Invalid room ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Room not found"
// @Router /api/rooms/{id} [get]
func GetRoom(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return
	}

	var room models.Room
	if err := database.DB.Preload("Users").First(&room, roomID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}

// JoinRoom godoc
// @Summary Join a room
// @Description Adds the authenticated user to the room's participants; joining twice is a no-op
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]interface{} "Joined or already joined"
// @Failure 400 {object} map[string]string "Invalid room ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id}/join [post]
func JoinRoom(c *gin.Context) {
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

	// Joining twice leaves the participant set unchanged
	var existing models.RoomUser
	if result := database.DB.Where("room_id = ? AND user_id = ?", roomID, userID).First(&existing); result.RowsAffected > 0 {
		c.JSON(http.StatusOK, gin.H{
			"message": "Already joined",
			"room":    room,
		})
		return
	}

	roomUser := models.RoomUser{
		RoomID: uint(roomID),
		UserID: userID,
	}
	if err := database.DB.Create(&roomUser).Error; err != nil {
		// Two concurrent joins race the existence check; the loser hits
		// the composite primary key, which is still "already joined"
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusOK, gin.H{
				"message": "Already joined",
				"room":    room,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Joined room successfully",
		"room":    room,
	})
}

// DeleteRoom godoc
// @Summary Delete a room
// @Description Deletes a room and all its messages; only the creator may do this
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Room ID"
// @Success 200 {object} map[string]string "Room deleted successfully"
// @Failure 400 {object} map[string]string "Invalid room ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Room not found"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/{id} [delete]
func DeleteRoom(c *gin.Context) {
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

	if room.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	// Delete room members
	if err := database.DB.Where("room_id = ?", roomID).Delete(&models.RoomUser{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room members"})
		return
	}

	// Delete messages
	if err := database.DB.Where("room_id = ?", roomID).Delete(&models.Message{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room messages"})
		return
	}

	// Delete room
	if err := database.DB.Delete(&room).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	websocket.BroadcastToRoom(uint(roomID), "room_deleted", gin.H{"room_id": roomID})

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted successfully"})
}

// ClearAllRooms godoc
// @Summary Delete every room
// @Description Deletes all rooms and their messages; requires the confirmation phrase "delete-all-rooms"
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param confirmation body ClearAllRoomsInput true "Confirmation"
// @Success 200 {object} map[string]interface{} "Rooms cleared"
// @Failure 400 {object} map[string]string "Missing or wrong confirmation"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/rooms/clear-all [delete]
func ClearAllRooms(c *gin.Context) {
	var input ClearAllRoomsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if input.Confirm != clearAllConfirmation {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Confirmation phrase does not match"})
		return
	}

	// Collect room IDs first so connected clients can be told afterwards
	var rooms []models.Room
	if err := database.DB.Find(&rooms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rooms"})
		return
	}

	result := database.DB.Where("1 = 1").Delete(&models.Room{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear rooms"})
		return
	}

	if err := database.DB.Where("1 = 1").Delete(&models.RoomUser{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear room members"})
		return
	}

	if err := database.DB.Where("1 = 1").Delete(&models.Message{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear messages"})
		return
	}

	for _, room := range rooms {
		websocket.BroadcastToRoom(room.ID, "room_deleted", gin.H{"room_id": room.ID})
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "All rooms deleted",
		"deleted_count": result.RowsAffected,
	})
}
