package session

// UserProfile holds the display fields of the logged-in user.
type UserProfile struct {
	FullName string `json:"fullName,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// User describes the authenticated account.
type User struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	IsActive int         `json:"isActive"`
	Roles    []string    `json:"roles"`
	Profile  UserProfile `json:"userProfile"`
}

// State is the persisted auth session: token pair plus the logged-in user.
// It is created on successful login or token refresh and cleared entirely on
// logout or irrecoverable refresh failure.
type State struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	User         *User  `json:"logged_in_user,omitempty"`
}

// envelope mirrors the on-device storage format of the mobile app: a single
// key holding {"state":{...}}.
type envelope struct {
	State State `json:"state"`
}
