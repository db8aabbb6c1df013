package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoomNotFound is returned when no active room matches the lookup.
	ErrRoomNotFound = errors.New("room not found")
	// ErrDuplicateUser is returned when the email or username is taken.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrDuplicateRoom is returned when a room with the same name exists.
	ErrDuplicateRoom = errors.New("room already exists")
)

// Store provides access to users, rooms, and messages.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database at the given path, runs migrations,
// and returns a ready Store. The dsn accepts any SQLite DSN, including
// file::memory: variants used by tests.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &Room{}, &Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateUser persists a new account with the already-hashed password.
func (s *Store) CreateUser(username, email, hashedPassword string) (*User, error) {
	var count int64
	if err := s.db.Model(&User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateUser
	}

	user := &User{
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		IsActive:       true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// UserByEmail retrieves a user by email address.
func (s *Store) UserByEmail(email string) (*User, error) {
	var user User
	if err := s.db.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// UserByID retrieves a user by primary key.
func (s *Store) UserByID(id uint) (*User, error) {
	var user User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// Users returns all registered accounts.
func (s *Store) Users() ([]User, error) {
	var users []User
	if err := s.db.Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetUserActive activates or deactivates an account. Deactivated accounts
// fail authentication but keep their message history.
func (s *Store) SetUserActive(id uint, active bool) error {
	result := s.db.Model(&User{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateRoom persists a new chat room. Room names are unique.
func (s *Store) CreateRoom(name, description string) (*Room, error) {
	if _, err := s.RoomByName(name); err == nil {
		return nil, ErrDuplicateRoom
	} else if !errors.Is(err, ErrRoomNotFound) {
		return nil, err
	}

	room := &Room{Name: name, Description: description, IsActive: true}
	if err := s.db.Create(room).Error; err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// RoomByID retrieves an active room by primary key.
func (s *Store) RoomByID(id uint) (*Room, error) {
	var room Room
	if err := s.db.First(&room, "id = ? AND is_active = ?", id, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// RoomByName retrieves an active room by name.
func (s *Store) RoomByName(name string) (*Room, error) {
	var room Room
	if err := s.db.First(&room, "name = ? AND is_active = ?", name, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// RoomExists reports whether an active room with the given id exists.
func (s *Store) RoomExists(id uint) (bool, error) {
	_, err := s.RoomByID(id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrRoomNotFound) {
		return false, nil
	}
	return false, err
}

// ActiveRooms returns all active rooms.
func (s *Store) ActiveRooms() ([]Room, error) {
	var rooms []Room
	if err := s.db.Where("is_active = ?", true).Order("id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// CreateMessage persists a new message and returns it with the id and
// timestamp assigned by the database and the author association loaded.
func (s *Store) CreateMessage(content string, userID, roomID uint) (*Message, error) {
	message := &Message{Content: content, UserID: userID, RoomID: roomID}
	if err := s.db.Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if err := s.db.Preload("User").First(message, message.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload message: %w", err)
	}
	return message, nil
}

// RecentMessages returns up to limit messages for a room, oldest first,
// together with a flag telling whether older messages remain. A non-nil
// cursor restricts the page to messages with id strictly below it. One extra
// row is fetched to probe for more without a second count query.
func (s *Store) RecentMessages(roomID uint, limit int, cursor *uint) ([]Message, bool, error) {
	if limit <= 0 {
		return nil, false, nil
	}

	query := s.db.Preload("User").
		Where("room_id = ?", roomID).
		Order("id DESC")
	if cursor != nil {
		query = query.Where("id < ?", *cursor)
	}

	var messages []Message
	if err := query.Limit(limit + 1).Find(&messages).Error; err != nil {
		return nil, false, fmt.Errorf("failed to fetch messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Flip newest-first into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, hasMore, nil
}
