package models

// Turn is one speaker turn of a rendered dialogue.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
