package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAndValidateToken(t *testing.T) {
	actor := "user-42"
	session := ServiceSession{
		Service:        "case-pipeline",
		OrganizationID: "org-1",
		ActorID:        &actor,
	}

	token, err := GenerateToken(session)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "case-pipeline", claims.Session.Service)
	assert.Equal(t, "org-1", claims.Session.OrganizationID)
	assert.Equal(t, &actor, claims.Session.ActorID)
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := ValidateToken("not-a-token")
	assert.Error(t, err)
}
