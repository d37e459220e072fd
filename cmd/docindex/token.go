package main

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Run executes the token command. The raw token is shown once; only its
// digest belongs in configuration.
func (c *TokenCmd) Run(deps *Dependencies) error {
	token, err := middleware.NewToken()
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintf(deps.Stdout, "token   %s\n", token)
	fmt.Fprintf(deps.Stdout, "digest  %s\n", middleware.HashToken(token))
	return nil
}
