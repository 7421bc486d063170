package orgs

import (
	"fmt"

	"github.com/r3aper2020/Gamut-MGMT/pkg/store"
)

// Record field names used in queries and partial updates
const (
	fieldOrganizationID = "organizationId"
	fieldTeamID         = "teamId"
	fieldRole           = "role"
	fieldOwnerID        = "ownerId"
	fieldIsDefault      = "isDefault"
	fieldMemberCount    = "memberCount"
)

// bootstrapDocID marks that the first owner has registered
const bootstrapDocID = "bootstrap_owner"

// recordFields encodes v for storage, dropping keys the store tracks itself
func recordFields(v interface{}, drop ...string) (map[string]interface{}, error) {
	fields, err := store.Fields(v)
	if err != nil {
		return nil, err
	}
	delete(fields, "createdAt")
	delete(fields, "updatedAt")
	for _, key := range drop {
		delete(fields, key)
	}
	return fields, nil
}

func userFromDoc(doc *store.Document) (*User, error) {
	var u User
	if err := doc.Decode(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	u.ID = doc.ID
	u.CreatedAt = doc.CreatedAt
	u.UpdatedAt = doc.UpdatedAt
	return &u, nil
}

func userFields(u *User) (map[string]interface{}, error) {
	return recordFields(u, "uid")
}

func organizationFromDoc(doc *store.Document) (*Organization, error) {
	var org Organization
	if err := doc.Decode(&org); err != nil {
		return nil, fmt.Errorf("failed to decode organization: %w", err)
	}
	org.ID = doc.ID
	org.CreatedAt = doc.CreatedAt
	org.UpdatedAt = doc.UpdatedAt
	return &org, nil
}

func organizationFields(org *Organization) (map[string]interface{}, error) {
	return recordFields(org, "id")
}

func teamFromDoc(doc *store.Document) (*Team, error) {
	var team Team
	if err := doc.Decode(&team); err != nil {
		return nil, fmt.Errorf("failed to decode team: %w", err)
	}
	team.ID = doc.ID
	team.CreatedAt = doc.CreatedAt
	team.UpdatedAt = doc.UpdatedAt
	return &team, nil
}

func teamFields(team *Team) (map[string]interface{}, error) {
	return recordFields(team, "id")
}

func usersFromDocs(docs []*store.Document) ([]*User, error) {
	users := make([]*User, 0, len(docs))
	for _, doc := range docs {
		u, err := userFromDoc(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func teamsFromDocs(docs []*store.Document) ([]*Team, error) {
	teams := make([]*Team, 0, len(docs))
	for _, doc := range docs {
		team, err := teamFromDoc(doc)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, nil
}
