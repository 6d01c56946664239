package store

import "time"

// Lifecycle is the soft-delete state shared by every persisted entity.
type Lifecycle string

const (
	StateActive  Lifecycle = "active"
	StateDeleted Lifecycle = "deleted"
)

const (
	// MaxStyleExamples bounds User.StyleExamples; older entries are evicted first.
	MaxStyleExamples = 10
)

type User struct {
	ID                  string    `json:"id"`
	PhoneNumber         string    `json:"phoneNumber"`
	FullName            string    `json:"fullName"`
	Email               *string   `json:"email,omitempty"`
	PushToken           *string   `json:"pushToken,omitempty"`
	NotificationEnabled bool      `json:"notificationEnabled"`
	PreferredMode       string    `json:"preferredMode"` // legacy: professional | personal | casual
	StyleExamples       []string  `json:"contextTraining"`
	TranslationIDs      []string  `json:"translationIds"`
	State               Lifecycle `json:"state"`
	IsVerified          bool      `json:"isVerified"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (u *User) IsActive() bool { return u != nil && u.State == StateActive }

type Mode struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"isDefault"`
	State       Lifecycle `json:"state"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (m *Mode) IsActive() bool { return m != nil && m.State == StateActive }

// ModePatch lists the mode fields an update touches; nil fields keep their
// stored value. A non-nil empty Prompt retires the active prompt.
type ModePatch struct {
	Name        *string
	Description *string
	IsDefault   *bool
	Prompt      *string
}

type ModePrompt struct {
	ID        string    `json:"id"`
	ModeID    string    `json:"modeId"`
	Prompt    string    `json:"prompt"`
	State     Lifecycle `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

type Translation struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ModeID        string    `json:"modeId,omitempty"` // empty on rows written by the fixed-enum scheme
	ModeName      string    `json:"mode"`
	Input         string    `json:"translationInput"`
	Outputs       []string  `json:"translationOutput"`
	SelectedIndex int       `json:"selectedIndex"`
	State         Lifecycle `json:"state"`
	CreatedAt     time.Time `json:"date"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (t *Translation) IsActive() bool { return t != nil && t.State == StateActive }

// ModeCount is one row of the per-mode translation statistics.
type ModeCount struct {
	Mode  string `json:"mode"`
	Count int    `json:"count"`
}
