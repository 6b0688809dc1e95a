// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (room.go, user.go, tagline.go, event.go, errors.go) hold shared types and
// the repository contracts the adapters implement. No implementation code beyond small value helpers.
package domain
