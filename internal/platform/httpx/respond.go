// Package httpx provides HTTP response utilities for the uniform result envelope.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response shape every endpoint returns.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends a successful envelope with status 200.
func OK(w http.ResponseWriter, message string, payload any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Payload: payload})
}

// Created sends a successful envelope with status 201.
func Created(w http.ResponseWriter, message string, payload any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Payload: payload})
}

// Fail sends a failure envelope with the given status.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
