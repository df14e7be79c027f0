// Package notify implementa o cliente de notificação entre serviços.
// A entrega é best-effort do ponto de vista do chamador síncrono; quando
// usada a partir de uma entrada de outbox, a retentativa fica por conta do
// dispatcher.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

type Notifier struct {
	client *resty.Client
	log    *zap.Logger
}

func New(log *zap.Logger) *Notifier {
	return &Notifier{
		client: resty.New(),
		log:    log,
	}
}

// Post envia um POST JSON com timeout limitado. Só o status documentado do
// endpoint conta como sucesso; qualquer outro status ou erro de transporte
// é devolvido ao chamador.
func (n *Notifier) Post(ctx context.Context, url string, body any, timeout time.Duration, wantStatus int) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("posting notification to %s: %w", url, err)
	}

	if resp.StatusCode() != wantStatus {
		n.log.Warn("notification endpoint returned unexpected status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()))
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, url, resp.StatusCode())
	}
	return nil
}
