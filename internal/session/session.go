package session

import (
	"fmt"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// QueryParam is the session link parameter that carries the session id.
const QueryParam = "session_id"

const (
	idPrefix       = "session_"
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLength   = 9
)

// Role identifies who spoke a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn represents a single message in a conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ID identifies a conversation on the backend
type ID string

func (id ID) String() string { return string(id) }

// Generate creates a new session id of the form session_<unix-millis>_<suffix>.
func Generate() (ID, error) {
	return generateAt(time.Now())
}

func generateAt(now time.Time) (ID, error) {
	suffix, err := nanoid.Generate(suffixAlphabet, suffixLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate session suffix: %w", err)
	}
	return ID(fmt.Sprintf("%s%d_%s", idPrefix, now.UnixMilli(), suffix)), nil
}

// Valid reports whether id looks like something the backend can route on.
// Ids read from a shared link are accepted as-is as long as they are a
// single non-empty path segment.
func (id ID) Valid() bool {
	s := string(id)
	return s != "" && !strings.ContainsAny(s, "/?#% \t\n")
}
