package transaction_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/transaction"
	"github.com/vladislavdragonenkov/campusmarket/internal/storage/memory"
)

type recordedEvent struct {
	userID string
	event  domain.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) SendToUser(userID string, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userID: userID, event: event})
}

func (n *recordingNotifier) SendToConversationParticipants(event domain.Event, conversationID, excludeUserID string) {
}

func (n *recordingNotifier) SendToTransactionParticipants(event domain.Event, transactionID, excludeUserID string) {
}

func (n *recordingNotifier) sentTo(userID string, eventType domain.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.userID == userID && e.event.Type == eventType {
			count++
		}
	}
	return count
}

type fixture struct {
	store    *memory.Store
	notifier *recordingNotifier
	engine   transaction.Engine
}

// newFixture поднимает стор с товаром item-1 продавца seller-1,
// диалогом conv-1 пары buyer-1/seller-1 и профилем продавца.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	now := time.Now().UTC()

	repos := store.Repos()
	if err := repos.Items.Create(domain.Item{
		ID:        "item-1",
		SellerID:  "seller-1",
		Title:     "desk lamp",
		Price:     10,
		Status:    domain.ItemStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed item failed: %v", err)
	}
	if err := repos.Conversations.Create(domain.Conversation{
		ID:             "conv-1",
		Participant1ID: "buyer-1",
		Participant2ID: "seller-1",
		ItemID:         "item-1",
		CreatedAt:      now,
	}); err != nil {
		t.Fatalf("seed conversation failed: %v", err)
	}
	if err := repos.Users.Create(domain.User{ID: "seller-1", Email: "s@example.edu", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	return &fixture{
		store:    store,
		notifier: notifier,
		engine:   transaction.NewEngineWithoutMetrics(store, notifier, nil),
	}
}

func (f *fixture) openTransaction(t *testing.T) domain.Transaction {
	t.Helper()
	tx, created, err := f.engine.CreateAppointment(context.Background(), "buyer-1", transaction.AppointmentInput{
		ConversationID: "conv-1",
		ItemID:         "item-1",
		MeetupPlace:    "library entrance",
	})
	if err != nil {
		t.Fatalf("create appointment failed: %v", err)
	}
	if !created {
		t.Fatal("expected a new transaction")
	}
	return tx
}

func boolPtr(v bool) *bool { return &v }

func TestEngine_CreateAppointment(t *testing.T) {
	f := newFixture(t)

	tx := f.openTransaction(t)
	if tx.Status != domain.TransactionStatusInProgress {
		t.Fatalf("expected in_progress, got %s", tx.Status)
	}
	if tx.BuyerID != "buyer-1" || tx.SellerID != "seller-1" {
		t.Fatalf("unexpected parties: %s/%s", tx.BuyerID, tx.SellerID)
	}

	item, err := f.store.Repos().Items.Get("item-1")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Status != domain.ItemStatusReserved {
		t.Fatalf("expected item reserved, got %s", item.Status)
	}
	if got := f.notifier.sentTo("seller-1", domain.EventTransactionCreated); got != 1 {
		t.Fatalf("expected transaction_created for seller, got %d", got)
	}
}

func TestEngine_CreateAppointmentIdempotent(t *testing.T) {
	f := newFixture(t)
	first := f.openTransaction(t)

	meetup := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	second, created, err := f.engine.CreateAppointment(context.Background(), "seller-1", transaction.AppointmentInput{
		ConversationID: "conv-1",
		ItemID:         "item-1",
		MeetupTime:     &meetup,
		MeetupPlace:    "cafeteria",
	})
	if err != nil {
		t.Fatalf("second appointment failed: %v", err)
	}
	if created {
		t.Fatal("expected upsert of the existing transaction")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same transaction, got %s and %s", first.ID, second.ID)
	}
	if second.MeetupPlace != "cafeteria" {
		t.Fatalf("expected meetup place updated, got %q", second.MeetupPlace)
	}
	if second.MeetupTime == nil || !second.MeetupTime.Equal(meetup) {
		t.Fatalf("expected meetup time %v, got %v", meetup, second.MeetupTime)
	}
	if got := f.notifier.sentTo("buyer-1", domain.EventTransactionUpdate); got != 1 {
		t.Fatalf("expected transaction_update for buyer, got %d", got)
	}
}

func TestEngine_CreateAppointmentAuthorization(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.CreateAppointment(context.Background(), "stranger", transaction.AppointmentInput{
		ConversationID: "conv-1",
		ItemID:         "item-1",
	})
	if err != domain.ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestEngine_CreateAppointmentLinksAcceptedRequest(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	if err := f.store.Repos().BuyRequests.Create(domain.BuyRequest{
		ID:             "req-1",
		ItemID:         "item-1",
		BuyerID:        "buyer-1",
		SellerID:       "seller-1",
		ConversationID: "conv-1",
		Status:         domain.BuyRequestStatusAccepted,
		CreatedAt:      now,
	}); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}

	tx := f.openTransaction(t)
	if tx.BuyRequestID != "req-1" {
		t.Fatalf("expected link to req-1, got %q", tx.BuyRequestID)
	}
}

func TestEngine_UpdateFieldAuthorization(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	_, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		SellerConfirmed: boolPtr(true),
	})
	if err != domain.ErrNotSeller {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}

	_, err = f.engine.Update(context.Background(), tx.ID, "seller-1", domain.TransactionUpdate{
		BuyerCancelConfirmed: boolPtr(true),
	})
	if err != domain.ErrNotBuyer {
		t.Fatalf("expected ErrNotBuyer, got %v", err)
	}

	_, err = f.engine.Update(context.Background(), tx.ID, "stranger", domain.TransactionUpdate{
		MeetupPlace: stringPtr("gym"),
	})
	if err != domain.ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	_, err = f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{})
	if err != domain.ErrEmptyUpdate {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
}

func stringPtr(v string) *string { return &v }

func TestEngine_UpdateMeetupFields(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	meetup := time.Now().UTC().Add(time.Hour)
	updated, err := f.engine.Update(context.Background(), tx.ID, "seller-1", domain.TransactionUpdate{
		MeetupTime: &meetup,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.MeetupTime == nil {
		t.Fatal("expected meetup time set")
	}

	// Явный null очищает время встречи.
	cleared, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		ClearMeetupTime: true,
	})
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared.MeetupTime != nil {
		t.Fatalf("expected meetup time cleared, got %v", cleared.MeetupTime)
	}
}

func TestEngine_MutualCompletion(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	// Вторая pending-заявка по товару должна отклониться каскадом.
	if err := f.store.Repos().BuyRequests.Create(domain.BuyRequest{
		ID:       "req-other",
		ItemID:   "item-1",
		BuyerID:  "buyer-2",
		SellerID: "seller-1",
		Status:   domain.BuyRequestStatusPending,
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}

	tx := f.openTransaction(t)

	half, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		BuyerConfirmed: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("buyer confirm failed: %v", err)
	}
	if half.Status != domain.TransactionStatusInProgress {
		t.Fatalf("one confirmation must not complete, got %s", half.Status)
	}

	done, err := f.engine.Update(context.Background(), tx.ID, "seller-1", domain.TransactionUpdate{
		SellerConfirmed: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("seller confirm failed: %v", err)
	}
	if done.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	item, _ := f.store.Repos().Items.Get("item-1")
	if item.Status != domain.ItemStatusSold {
		t.Fatalf("expected item sold, got %s", item.Status)
	}

	seller, err := f.store.Repos().Users.Get("seller-1")
	if err != nil {
		t.Fatalf("get seller failed: %v", err)
	}
	if seller.TotalSales != 1 {
		t.Fatalf("expected total_sales 1, got %d", seller.TotalSales)
	}

	other, _ := f.store.Repos().BuyRequests.Get("req-other")
	if other.Status != domain.BuyRequestStatusRejected {
		t.Fatalf("expected cascaded rejection, got %s", other.Status)
	}

	if _, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		MeetupPlace: stringPtr("anywhere"),
	}); err != domain.ErrTransactionFinished {
		t.Fatalf("expected ErrTransactionFinished, got %v", err)
	}
}

func TestEngine_CompletionBeatsCancellation(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	if _, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		BuyerConfirmed:       boolPtr(true),
		BuyerCancelConfirmed: boolPtr(true),
	}); err != nil {
		t.Fatalf("buyer update failed: %v", err)
	}

	done, err := f.engine.Update(context.Background(), tx.ID, "seller-1", domain.TransactionUpdate{
		SellerConfirmed:       boolPtr(true),
		SellerCancelConfirmed: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("seller update failed: %v", err)
	}
	if done.Status != domain.TransactionStatusCompleted {
		t.Fatalf("completion must win over cancellation, got %s", done.Status)
	}
}

func TestEngine_MutualCancellation(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	if err := f.store.Repos().BuyRequests.Create(domain.BuyRequest{
		ID:        "req-1",
		ItemID:    "item-1",
		BuyerID:   "buyer-1",
		SellerID:  "seller-1",
		Status:    domain.BuyRequestStatusAccepted,
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed request failed: %v", err)
	}

	tx := f.openTransaction(t)
	if tx.BuyRequestID != "req-1" {
		t.Fatalf("expected linked request, got %q", tx.BuyRequestID)
	}

	if _, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		BuyerCancelConfirmed: boolPtr(true),
	}); err != nil {
		t.Fatalf("buyer cancel confirm failed: %v", err)
	}
	done, err := f.engine.Update(context.Background(), tx.ID, "seller-1", domain.TransactionUpdate{
		SellerCancelConfirmed: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("seller cancel confirm failed: %v", err)
	}
	if done.Status != domain.TransactionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("cancelled transaction must record completed_at")
	}

	item, _ := f.store.Repos().Items.Get("item-1")
	if item.Status != domain.ItemStatusAvailable {
		t.Fatalf("expected item back to available, got %s", item.Status)
	}

	req, _ := f.store.Repos().BuyRequests.Get("req-1")
	if req.Status != domain.BuyRequestStatusCancelled {
		t.Fatalf("expected linked request cancelled, got %s", req.Status)
	}
}

func TestEngine_UnilateralCancel(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	if _, err := f.engine.Cancel(context.Background(), tx.ID, "stranger"); err != domain.ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	done, err := f.engine.Cancel(context.Background(), tx.ID, "buyer-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if done.Status != domain.TransactionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatal("cancelled transaction must record completed_at")
	}

	// Повторная отмена — no-op с текущим состоянием.
	again, err := f.engine.Cancel(context.Background(), tx.ID, "seller-1")
	if err != nil {
		t.Fatalf("repeated cancel failed: %v", err)
	}
	if again.Status != domain.TransactionStatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.Status)
	}

	item, _ := f.store.Repos().Items.Get("item-1")
	if item.Status != domain.ItemStatusAvailable {
		t.Fatalf("expected item released, got %s", item.Status)
	}
}

func TestEngine_CancelCompletedFails(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	if _, err := f.engine.Update(context.Background(), tx.ID, "buyer-1", domain.TransactionUpdate{
		BuyerConfirmed: boolPtr(true),
	}); err != nil {
		t.Fatalf("buyer confirm failed: %v", err)
	}
	if _, err := f.engine.Update(context.Background(), tx.ID, "seller-1", domain.TransactionUpdate{
		SellerConfirmed: boolPtr(true),
	}); err != nil {
		t.Fatalf("seller confirm failed: %v", err)
	}

	if _, err := f.engine.Cancel(context.Background(), tx.ID, "buyer-1"); err != domain.ErrTransactionCompleted {
		t.Fatalf("expected ErrTransactionCompleted, got %v", err)
	}
}

func TestEngine_GetAndListByConversation(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	if _, err := f.engine.Get(context.Background(), tx.ID, "stranger"); err != domain.ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	got, err := f.engine.Get(context.Background(), tx.ID, "buyer-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != tx.ID {
		t.Fatalf("expected %s, got %s", tx.ID, got.ID)
	}

	list, err := f.engine.ListByConversation(context.Background(), "conv-1", "seller-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(list))
	}

	if _, err := f.engine.ListByConversation(context.Background(), "conv-1", "stranger"); err != domain.ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestEngine_TimelineRecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	tx := f.openTransaction(t)

	if _, err := f.engine.Cancel(context.Background(), tx.ID, "buyer-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	events, err := f.engine.Timeline(context.Background(), tx.ID, "buyer-1")
	if err != nil {
		t.Fatalf("timeline failed: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected open+cancel events, got %d", len(events))
	}
}
