package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// CartClient chama o cartservice para devolver quantidades ao carrinho
// quando um pagamento não se concretiza. O endpoint soma quantidades, então
// uma segunda entrega do mesmo resultado dobraria o crédito; o usecase só
// compensa na primeira transição de status.
type CartClient struct {
	client  *resty.Client
	baseURL string
}

func NewCartClient(baseURL string) *CartClient {
	return &CartClient{
		client:  resty.New().SetTimeout(2 * time.Second),
		baseURL: baseURL,
	}
}

func (c *CartClient) RestoreItem(ctx context.Context, userID int, article string, quantity int) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"userId":          userID,
			"article":         article,
			"productQuantity": quantity,
		}).
		Post(c.baseURL + "/change-cart-product-count-by-user-id")
	if err != nil {
		return fmt.Errorf("calling cart service: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("cart service returned %d: %s", resp.StatusCode(), resp.Body())
	}
	return nil
}
