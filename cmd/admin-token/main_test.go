package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazydrop/lazydrop-billing/pkg/auth"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

func TestMintProducesParseableToken(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "lazydrop-billing", ExpirationMinutes: 10}

	token, err := mint(cfg, time.Now(), "ops@lazydrop.test", "admin")
	require.NoError(t, err)

	claims, err := auth.ParseAdminToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "ops@lazydrop.test", claims.Subject)
	assert.Equal(t, enums.AdminRoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestMintRejectsBadInput(t *testing.T) {
	cfg := config.JWTConfig{Secret: "secret", Issuer: "lazydrop-billing", ExpirationMinutes: 10}

	_, err := mint(cfg, time.Now(), "", "admin")
	assert.Error(t, err)

	_, err = mint(cfg, time.Now(), "ops", "owner")
	assert.Error(t, err)
}
