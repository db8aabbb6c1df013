// Package store persists users, rooms, and messages for the Parlor chat
// service using GORM with a SQLite backend.
package store

import (
	"time"
)

// User represents a registered account. The password is stored as a bcrypt
// hash and never serialized.
type User struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Username       string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Email          string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	HashedPassword string    `gorm:"size:255;not null" json:"-"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
}

// TableName returns the table name for the User model.
func (User) TableName() string {
	return "users"
}

// Room is a named broadcast domain that messages belong to.
type Room struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
}

// TableName returns the table name for the Room model.
func (Room) TableName() string {
	return "rooms"
}

// Message is one chat message. The auto-increment primary key doubles as the
// pagination cursor: ids strictly increase with creation order.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	RoomID    uint      `gorm:"not null;index" json:"room_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
}

// TableName returns the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}
