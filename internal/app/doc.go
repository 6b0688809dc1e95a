// Package app provides the application service layer.
//
// Rooms owns the admission policy for every room kind and is the only caller of the hub's join
// operations. Taglines is the admin-gated CRUD surface for rotating site messages.
// Both depend on domain interfaces, not concrete implementations.
package app
