package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "groundpool"

// knownScopes is the list of key scopes checked by List(). The only scope
// today is the upstream grounding backend.
var knownScopes = []string{"upstream"}

// Vault provides secure API key storage using the OS keychain,
// with fallback to environment variables.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores an API key for the given scope in the OS keychain.
func (v *Vault) Set(scope, key string) error {
	return keyring.Set(serviceName, scope, key)
}

// Get retrieves the API key for the given scope. It first checks the
// OS keychain, then falls back to the environment variable
// GROUNDPOOL_KEY_{UPPER(scope)}.
func (v *Vault) Get(scope string) (string, error) {
	secret, err := keyring.Get(serviceName, scope)
	if err == nil && secret != "" {
		return secret, nil
	}

	// Fallback to environment variable.
	envKey := "GROUNDPOOL_KEY_" + strings.ToUpper(scope)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no key found for scope %q: not in keychain and %s not set", scope, envKey)
}

// Delete removes the API key for the given scope from the OS keychain.
func (v *Vault) Delete(scope string) error {
	return keyring.Delete(serviceName, scope)
}

// List returns the names of known scopes that currently have keys stored.
// It checks both the keychain and environment variables for each scope.
func (v *Vault) List() ([]string, error) {
	var scopes []string

	for _, scope := range knownScopes {
		// Check keychain.
		secret, err := keyring.Get(serviceName, scope)
		if err == nil && secret != "" {
			scopes = append(scopes, scope)
			continue
		}

		// Check environment variable.
		envKey := "GROUNDPOOL_KEY_" + strings.ToUpper(scope)
		if val := os.Getenv(envKey); val != "" {
			scopes = append(scopes, scope)
		}
	}

	return scopes, nil
}

// ResolveKeyRef parses a key reference and retrieves the corresponding API key.
// Supported formats:
//   - "keyring://groundpool/<scope>" (preferred)
//   - "env:VARIABLE_NAME" (environment variable)
//   - "file:///path/to/key" (plain-text file)
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	// Format 1: keyring://groundpool/<scope>
	if strings.HasPrefix(keyRef, "keyring://") {
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://groundpool/<scope>\")", keyRef)
		}
		return v.Get(parts[1])
	}

	// Format 2: env:VARIABLE_NAME
	if strings.HasPrefix(keyRef, "env:") {
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)
	}

	// Format 3: file:///path/to/key
	if strings.HasPrefix(keyRef, "file://") {
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://groundpool/<scope>\", \"env:VARIABLE_NAME\", or \"file:///path/to/key\")", keyRef)
}
