// Package ui provides a Bubble Tea watch client for the jpdict daemon.
//
// The client connects to the daemon's listener socket, renders every
// database state update it receives and sends update, cancel and delete
// requests back over the same connection.
package ui
