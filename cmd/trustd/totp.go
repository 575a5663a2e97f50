package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	goTrust "github.com/MrEthical07/goTrust"
)

// totpSecrets maps account IDs to base32 TOTP secrets. The file is plain
// YAML, one `account_id: SECRET` per line, filled from `trustctl totp`.
type totpSecrets map[string]string

func loadTOTPSecrets(path string) (totpSecrets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("totp secrets: %w", err)
	}
	var m map[string]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("totp secrets %s: %w", path, err)
	}
	return totpSecrets(m), nil
}

func (s totpSecrets) TOTPSecret(_ context.Context, accountID string) (string, error) {
	secret, ok := s[accountID]
	if !ok || secret == "" {
		return "", goTrust.ErrTOTPNotConfigured
	}
	return secret, nil
}
