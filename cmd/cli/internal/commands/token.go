package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wolfeidau/leadpool/internal/auth"
	"github.com/wolfeidau/leadpool/internal/models"
)

type TokenCmd struct {
	UserID     int64         `help:"Numeric user id placed in the token subject" required:""`
	Username   string        `help:"Username shown to other users" required:""`
	TTL        time.Duration `help:"Token lifetime" default:"12h"`
	SigningKey string        `help:"path to the PEM encoded ES256 private key" type:"existingfile" required:"" env:"LEADPOOL_JWT_SIGNING_KEY"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	token, err := t.issue()
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func (t *TokenCmd) issue() (string, error) {
	key, err := os.ReadFile(t.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to read signing key: %w", err)
	}

	return auth.IssueToken(string(key), models.User{ID: t.UserID, Username: t.Username}, t.TTL)
}
