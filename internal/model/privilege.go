package model

import (
	"fmt"
	"strings"
)

// Privilege is a user's access level. The zero value is NonMember and the
// levels compare with the usual integer operators.
type Privilege int

const (
	NonMember Privilege = iota
	Member
	Moderator
	Administrator
)

var privilegeNames = [...]string{
	NonMember:     "NONMEMBER",
	Member:        "MEMBER",
	Moderator:     "MODERATOR",
	Administrator: "ADMINISTRATOR",
}

func (p Privilege) String() string {
	if p < NonMember || p > Administrator {
		return fmt.Sprintf("Privilege(%d)", int(p))
	}
	return privilegeNames[p]
}

// AtLeast reports whether p grants at least the rights of min.
func (p Privilege) AtLeast(min Privilege) bool {
	return p >= min
}

// ParsePrivilege accepts the names produced by String, case-insensitively.
func ParsePrivilege(s string) (Privilege, error) {
	for i, name := range privilegeNames {
		if strings.EqualFold(s, name) {
			return Privilege(i), nil
		}
	}
	return 0, fmt.Errorf("model: unknown privilege %q", s)
}

func (p Privilege) MarshalText() ([]byte, error) {
	if p < NonMember || p > Administrator {
		return nil, fmt.Errorf("model: cannot encode privilege %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Privilege) UnmarshalText(text []byte) error {
	parsed, err := ParsePrivilege(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
