// Package client is the wire layer between the access-control core and the
// sharing service.
//
// # Overview
//
// Client describes every REST operation the core needs: authentication
// (Login, Logout, Register, CurrentUser), the data-access endpoints
// (ListOwned, ListGranted, Get, Create, UpdateReaders, Delete, Download) and
// the username directory. HTTPClient implements it over net/http with JSON
// bodies and the "Authorization: Token <key>" header.
//
// # Credentials
//
// The client never stores a token itself. It reads the current credential from
// a TokenSource on every request and calls TokenSource.Invalidate when the
// server answers 401 with the "Invalid token." detail, so a rejected
// credential is dropped no matter which endpoint saw it.
//
// # Error Handling
//
// Requests that never produced a response fail with ErrTransport. Responses
// with a failure status are returned as *APIError, which carries the status,
// the server detail and any field errors and unwraps to one of the sentinels
// (ErrInvalidCredentials, ErrInvalidToken, ErrValidation, ErrForbidden,
// ErrNotOwner, ErrNotFound, ErrServer). Match them with errors.Is.
package client
