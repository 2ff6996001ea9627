// Package seed bootstraps organizations, roles, itemtypes, grants and user
// memberships from a YAML document. Applying the same document twice is a no-op.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatehouse/pkg/access"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Document is the root of a seed file
type Document struct {
	Organizations []Organization `yaml:"organizations"`
	Users         []User         `yaml:"users"`
}

// Organization declares a tenant with its roles, itemtypes and generic grants
type Organization struct {
	Name string `yaml:"name"`

	// GuestRole creates the organization's guest role. Grants may then name it as "guest".
	GuestRole   bool     `yaml:"guest_role"`
	Roles       []string `yaml:"roles"`
	Itemtypes   []string `yaml:"itemtypes"`
	Permissions []Grant  `yaml:"permissions"`
}

// Grant is an itemtype-wide permission for a role
type Grant struct {
	Itemtype   string `yaml:"itemtype"`
	Role       string `yaml:"role"`
	Permission string `yaml:"permission"`
}

// User declares a user item and its memberships
type User struct {
	UserID      int64        `yaml:"user_id"`
	Memberships []Membership `yaml:"memberships"`
}

// Membership links a user to an organization and some of its roles
type Membership struct {
	Organization string   `yaml:"organization"`
	Roles        []string `yaml:"roles"`
}

// Load reads and validates a seed file
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks names, references and permission codes. It reports every problem
// found, not just the first.
func (d *Document) Validate() error {
	var errs []error
	orgs := make(map[string]*Organization, len(d.Organizations))

	for i := range d.Organizations {
		org := &d.Organizations[i]
		name := strings.TrimSpace(org.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("organizations[%d]: name is required", i))
			continue
		}
		if _, dup := orgs[name]; dup {
			errs = append(errs, fmt.Errorf("organization %q: declared twice", name))
			continue
		}
		orgs[name] = org

		for _, role := range org.Roles {
			if strings.TrimSpace(role) == "" {
				errs = append(errs, fmt.Errorf("organization %q: empty role name", name))
			}
			if role == rbac.GuestRoleName {
				errs = append(errs, fmt.Errorf("organization %q: use guest_role instead of listing %q", name, role))
			}
		}
		for j, g := range org.Permissions {
			if !org.hasRole(g.Role) {
				errs = append(errs, fmt.Errorf("organization %q: permissions[%d]: unknown role %q", name, j, g.Role))
			}
			if !contains(org.Itemtypes, g.Itemtype) {
				errs = append(errs, fmt.Errorf("organization %q: permissions[%d]: unknown itemtype %q", name, j, g.Itemtype))
			}
			if g.Permission == "" {
				errs = append(errs, fmt.Errorf("organization %q: permissions[%d]: permission is required", name, j))
			} else if _, err := access.Decode(g.Permission); err != nil {
				errs = append(errs, fmt.Errorf("organization %q: permissions[%d]: %w", name, j, err))
			}
		}
	}

	seen := make(map[int64]bool, len(d.Users))
	for i, u := range d.Users {
		if u.UserID <= 0 {
			errs = append(errs, fmt.Errorf("users[%d]: user_id must be positive", i))
			continue
		}
		if seen[u.UserID] {
			errs = append(errs, fmt.Errorf("user %d: declared twice", u.UserID))
		}
		seen[u.UserID] = true

		for _, m := range u.Memberships {
			org, ok := orgs[m.Organization]
			if !ok {
				errs = append(errs, fmt.Errorf("user %d: unknown organization %q", u.UserID, m.Organization))
				continue
			}
			for _, role := range m.Roles {
				if !org.hasRole(role) {
					errs = append(errs, fmt.Errorf("user %d: unknown role %q in organization %q", u.UserID, role, m.Organization))
				}
			}
		}
	}

	return errors.Join(errs...)
}

func (o *Organization) hasRole(name string) bool {
	if name == rbac.GuestRoleName {
		return o.GuestRole
	}
	return contains(o.Roles, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
