package game

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Login exchanges credentials for a session token at the HTTP API and
// caches it in the user config dir so later runs can skip the prompt.
func Login(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("username and password required")
	}

	req := map[string]string{"username": username, "password": password}
	b, _ := json.Marshal(req)

	resp, err := http.Post(APIBase+"/api/login", "application/json", strings.NewReader(string(b)))
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login rejected: %s", resp.Status)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}

	if err := SaveToken(result.Token); err != nil {
		return "", fmt.Errorf("cache token: %w", err)
	}
	return result.Token, nil
}

// Register creates an account and logs in.
func Register(username, password string) (string, error) {
	req := map[string]string{"username": username, "password": password}
	b, _ := json.Marshal(req)

	resp, err := http.Post(APIBase+"/api/register", "application/json", strings.NewReader(string(b)))
	if err != nil {
		return "", fmt.Errorf("register request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("register rejected: %s", resp.Status)
	}
	return Login(username, password)
}
