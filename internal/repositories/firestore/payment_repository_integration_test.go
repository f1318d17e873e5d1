//go:build integration

package firestore

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	domain "github.com/vietcart/api/internal/domain"
	pconfig "github.com/vietcart/api/internal/platform/config"
	pfirestore "github.com/vietcart/api/internal/platform/firestore"
	"github.com/vietcart/api/internal/repositories"
)

func TestPaymentRepositoryApplyResultIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "payments-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewPaymentRepository(provider)
	if err != nil {
		t.Fatalf("new payment repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	firstDue := now.AddDate(0, 1, 0)

	// A three-slice installment order whose first slice is already counted.
	order := domain.Order{
		ID:            "order-10",
		Code:          "VC-2026-000010",
		UserID:        "user-1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodMomo,
		PayType:       domain.PayTypePartial,
		TotalAmount:   380_000,
		TotalItems:    1,
		LastPaymentID: "pay-1",
		Installment: &domain.Installment{
			Count:           3,
			NextPayDay:      &firstDue,
			NextPayAmount:   127_000,
			Remaining:       2,
			TotalPaidAmount: 127_000,
			IdentityID:      "001203004567",
			FullName:        "Nguyen Van A",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := client.Collection(ordersCollection).Doc(order.ID).Set(ctx, newOrderDocument(order)); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	firstPayment := domain.Payment{
		ID:        "pay-1",
		OrderID:   order.ID,
		Amount:    127_000,
		Method:    domain.PaymentMethodMomo,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
	}
	if err := repo.Insert(ctx, firstPayment); err != nil {
		t.Fatalf("seed first payment: %v", err)
	}

	// Confirming the placement payment must not advance the schedule again.
	outcome, err := repo.ApplyResult(ctx, repositories.PaymentResultRequest{
		PaymentID:      "pay-1",
		Status:         domain.PaymentStatusSuccess,
		TransactionRef: "momo-001",
		Now:            now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("apply first result: %v", err)
	}
	if outcome.Payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected success payment, got %s", outcome.Payment.Status)
	}
	if outcome.Order.LastPaymentID != "pay-1" || outcome.Order.LastPaymentStatus != domain.PaymentStatusSuccess {
		t.Fatalf("unexpected payment pointer: %s/%s", outcome.Order.LastPaymentID, outcome.Order.LastPaymentStatus)
	}
	inst := outcome.Order.Installment
	if inst == nil || inst.Remaining != 2 || inst.TotalPaidAmount != 127_000 {
		t.Fatalf("first slice must stay counted once, got %+v", inst)
	}

	// A follow-up installment payment advances the schedule.
	secondPayment := domain.Payment{
		ID:        "pay-2",
		OrderID:   order.ID,
		Amount:    127_000,
		Method:    domain.PaymentMethodMomo,
		Status:    domain.PaymentStatusPending,
		CreatedAt: firstDue,
	}
	if err := repo.Insert(ctx, secondPayment); err != nil {
		t.Fatalf("seed second payment: %v", err)
	}
	outcome, err = repo.ApplyResult(ctx, repositories.PaymentResultRequest{
		PaymentID:      "pay-2",
		Status:         domain.PaymentStatusSuccess,
		TransactionRef: "momo-002",
		Now:            firstDue.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("apply second result: %v", err)
	}
	inst = outcome.Order.Installment
	if inst == nil || inst.Remaining != 1 || inst.TotalPaidAmount != 254_000 {
		t.Fatalf("expected schedule advanced to 1 remaining, got %+v", inst)
	}
	if inst.NextPayDay == nil {
		t.Fatalf("expected a next due date while slices remain")
	}
	if outcome.Order.LastPaymentID != "pay-2" || outcome.Order.LastPaymentStatus != domain.PaymentStatusSuccess {
		t.Fatalf("unexpected payment pointer: %s/%s", outcome.Order.LastPaymentID, outcome.Order.LastPaymentStatus)
	}

	// A late verdict for the superseded first attempt updates that payment
	// row only; the order keeps pointing at the newest attempt.
	outcome, err = repo.ApplyResult(ctx, repositories.PaymentResultRequest{
		PaymentID: "pay-1",
		Status:    domain.PaymentStatusFailed,
		Now:       firstDue.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("apply stale result: %v", err)
	}
	if outcome.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected stale payment marked failed, got %s", outcome.Payment.Status)
	}
	if outcome.Order.LastPaymentID != "pay-2" || outcome.Order.LastPaymentStatus != domain.PaymentStatusSuccess {
		t.Fatalf("stale verdict moved the payment pointer: %s/%s", outcome.Order.LastPaymentID, outcome.Order.LastPaymentStatus)
	}

	// Paying the final slice clears the schedule.
	lastDue := firstDue.AddDate(0, 1, 0)
	finalPayment := domain.Payment{
		ID:        "pay-3",
		OrderID:   order.ID,
		Amount:    126_000,
		Method:    domain.PaymentMethodMomo,
		Status:    domain.PaymentStatusPending,
		CreatedAt: lastDue,
	}
	if err := repo.Insert(ctx, finalPayment); err != nil {
		t.Fatalf("seed final payment: %v", err)
	}
	outcome, err = repo.ApplyResult(ctx, repositories.PaymentResultRequest{
		PaymentID:      "pay-3",
		Status:         domain.PaymentStatusSuccess,
		TransactionRef: "momo-003",
		Now:            lastDue.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("apply final result: %v", err)
	}
	inst = outcome.Order.Installment
	if inst == nil || inst.Remaining != 0 || inst.TotalPaidAmount != 380_000 {
		t.Fatalf("expected a settled schedule, got %+v", inst)
	}
	if inst.NextPayDay != nil || inst.NextPayAmount != 0 {
		t.Fatalf("expected the due date cleared, got %+v", inst)
	}
}
