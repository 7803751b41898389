package models

// Result is the structured outcome every account operation hands back to the
// HTTP layer: a success flag, user-facing messages, and an optional redirect
// target. The core never renders markup itself.
type Result struct {
	Success  bool     `json:"success"`
	Messages []string `json:"messages,omitempty"`
	Redirect string   `json:"redirect,omitempty"`

	User *User `json:"user,omitempty"`
	// Updated asset path on avatar/cover changes, with cache-bust query
	AssetURL string `json:"asset_url,omitempty"`

	// Session is set by operations that bind one; the HTTP layer turns it
	// into a cookie and never serializes it into the response body.
	Session *Session `json:"-"`
}

// OK builds a success result with an optional message.
func OK(messages ...string) *Result {
	return &Result{Success: true, Messages: messages}
}

// Fail builds a failure result with the given user-facing messages.
func Fail(messages ...string) *Result {
	return &Result{Success: false, Messages: messages}
}
