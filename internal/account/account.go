// Package account provides the player identity handed to the game.
package account

import (
	"crypto/md5"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// OfflineAccessToken is accepted by the client when no session exists.
const OfflineAccessToken = "0"

var ErrInvalidName = errors.New("player name must be 1 to 16 letters, digits or underscores")

// Player is an authenticated or offline identity.
type Player struct {
	Name        string
	UUID        uuid.UUID
	AccessToken string
	UserType    string
}

// Offline returns the offline identity for name. The UUID is the name based
// version 3 UUID of "OfflinePlayer:"+name, the same one servers in offline
// mode assign.
func Offline(name string) (Player, error) {
	if !ValidName(name) {
		return Player{}, ErrInvalidName
	}
	return Player{
		Name:        name,
		UUID:        OfflineUUID(name),
		AccessToken: OfflineAccessToken,
		UserType:    "legacy",
	}, nil
}

// OfflineUUID hashes "OfflinePlayer:"+name without a namespace.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	id, _ := uuid.FromBytes(sum[:])
	return id
}

// ValidName reports whether name is a legal player name.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > 16 {
		return false
	}
	return strings.Trim(name, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_") == ""
}

// SimpleUUID is the UUID without dashes, the form the game expects.
func (p Player) SimpleUUID() string {
	return strings.ReplaceAll(p.UUID.String(), "-", "")
}
