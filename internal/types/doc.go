// Package types is the wire schema between devices and the server. Every frame is a JSON
// object with a "type" field.
//
// Client -> Server
// CreateRoom:   mode?: "original" | "pro" | "expert" | "coop"
// JoinRoom:     roomKey, name, avatar?
// Leave:        playerId? (defaults to the caller; the host may name anyone)
// StartRound:   trackUri, playerId? (omitted = next player in turn order)
// PlaceCard:    playerId, slotIndex
// Challenge:    challengerId, targetId, slotIndex
// Reveal:       year
// SkipCard:     playerId, trackUri
// AwardToken:   playerId
// RejoinHost:   roomId | roomKey
// CloseRoom:    {}
//
// Server -> Client
// RoomCreated:  roomKey, roomId
// Joined:       playerId, roomKey, roster
// RoomState:    roomKey, version, roster[{playerId,name,avatar,connected}], game, timelines
// Error:        code, message
// RoomClosed:   roomKey, reason
package types
