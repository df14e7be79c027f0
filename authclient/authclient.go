// Package authclient chama o serviço de autenticação para validar o token
// das requisições de entrada. A emissão e verificação do JWT em si ficam do
// lado do authservice; aqui só existe a fronteira HTTP.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrUnauthorized = errors.New("missing authorization header")
	ErrForbidden    = errors.New("token rejected by auth service")
)

type Client struct {
	client  *resty.Client
	baseURL string
}

func New(baseURL string) *Client {
	return &Client{
		client:  resty.New().SetTimeout(2 * time.Second),
		baseURL: baseURL,
	}
}

// Verify valida o header Authorization e devolve o user_id dono do token
func (c *Client) Verify(ctx context.Context, authHeader string) (int, error) {
	if authHeader == "" {
		return 0, ErrUnauthorized
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", authHeader).
		Get(c.baseURL + "/verify/")
	if err != nil {
		return 0, fmt.Errorf("verifying token: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, ErrForbidden
	}

	var body struct {
		UserID int `json:"user_id"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("decoding auth response: %w", err)
	}
	return body.UserID, nil
}
