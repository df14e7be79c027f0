package main

import "math/rand/v2"

// AuthorizationPolicy decide PAID ou FAILED para um débito cujo saldo já foi
// checado. A checagem de suficiência NÃO é papel da policy: ela acontece
// antes, sob lock, na mesma sub-transação do débito.
type AuthorizationPolicy interface {
	Authorize(userID int, amount float64) string
}

// RandomPolicy simula o processador de pagamento externo com uma moeda.
// Uma integração real substitui só esta peça; o contrato checar-decidir-
// debitar-registrar em volta dela não muda.
type RandomPolicy struct{}

func (RandomPolicy) Authorize(userID int, amount float64) string {
	if rand.IntN(2) == 0 {
		return PaymentStatusPaid
	}
	return PaymentStatusFailed
}

// PolicyFunc adapta uma função a AuthorizationPolicy
type PolicyFunc func(userID int, amount float64) string

func (f PolicyFunc) Authorize(userID int, amount float64) string {
	return f(userID, amount)
}
