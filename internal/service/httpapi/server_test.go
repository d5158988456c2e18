package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
	"github.com/vladislavdragonenkov/campusmarket/internal/notify"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/auth"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/buyrequest"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/item"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/review"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/transaction"
	"github.com/vladislavdragonenkov/campusmarket/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	hub    *notify.Hub
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	hub := notify.NewHub(store, nil, nil)

	api := NewServer(Config{
		Items:         item.NewLedger(store, nil),
		BuyRequests:   buyrequest.NewEngineWithoutMetrics(store, hub, nil),
		Transactions:  transaction.NewEngineWithoutMetrics(store, hub, nil),
		Reviews:       review.NewLedgerWithoutMetrics(store, nil),
		Hub:           hub,
		Authenticator: auth.NewStaticService(nil, true),
	})

	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)

	return &fixture{store: store, hub: hub, server: server}
}

// do выполняет запрос от имени userID; пустой userID — без Authorization.
func (f *fixture) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer dev:"+userID)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return out
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func TestAPI_RequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/items", "", nil)
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusUnauthorized)
}

func TestAPI_HealthIsPublic(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/health", "", nil)
	requireStatus(t, resp, http.StatusOK)

	body := decode[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestAPI_ItemLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/items", "seller-1", map[string]any{
		"title": "desk lamp", "price": 12.0, "category": "furniture",
	})
	requireStatus(t, resp, http.StatusCreated)
	created := decode[domain.Item](t, resp)
	if created.SellerID != "seller-1" || created.Status != domain.ItemStatusAvailable {
		t.Fatalf("unexpected item: %+v", created)
	}

	resp = f.do(t, http.MethodGet, "/api/items/"+created.ID, "buyer-1", nil)
	requireStatus(t, resp, http.StatusOK)
	fetched := decode[domain.Item](t, resp)
	if fetched.ID != created.ID {
		t.Fatalf("expected item %s, got %s", created.ID, fetched.ID)
	}

	resp = f.do(t, http.MethodPatch, "/api/items/"+created.ID+"/status", "seller-1", map[string]string{"status": "sold"})
	requireStatus(t, resp, http.StatusOK)
	updated := decode[domain.Item](t, resp)
	if updated.Status != domain.ItemStatusSold {
		t.Fatalf("expected sold, got %s", updated.Status)
	}
}

func TestAPI_ItemValidationAndAuthorization(t *testing.T) {
	f := newFixture(t)

	// Без названия — 400.
	resp := f.do(t, http.MethodPost, "/api/items", "seller-1", map[string]any{"price": 10.0})
	requireStatus(t, resp, http.StatusBadRequest)
	body := decode[map[string]string](t, resp)
	if body["detail"] == "" {
		t.Fatal("expected error detail")
	}

	// Чужой товар — 403.
	resp = f.do(t, http.MethodPost, "/api/items", "seller-1", map[string]any{"title": "lamp", "price": 10.0})
	requireStatus(t, resp, http.StatusCreated)
	created := decode[domain.Item](t, resp)

	resp = f.do(t, http.MethodPatch, "/api/items/"+created.ID+"/status", "intruder", map[string]string{"status": "hidden"})
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusForbidden)
}

func TestAPI_UnknownItemReturns404(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/items/no-such-item", "buyer-1", nil)
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusNotFound)
}

func TestAPI_BuyRequestFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/items", "seller-1", map[string]any{"title": "bike", "price": 80.0})
	requireStatus(t, resp, http.StatusCreated)
	itemCreated := decode[domain.Item](t, resp)

	resp = f.do(t, http.MethodPost, "/api/buy-requests", "buyer-1", map[string]string{"item_id": itemCreated.ID})
	requireStatus(t, resp, http.StatusCreated)
	request := decode[domain.BuyRequest](t, resp)
	if request.Status != domain.BuyRequestStatusPending {
		t.Fatalf("expected pending, got %s", request.Status)
	}

	// Повторная заявка того же покупателя — 409.
	resp = f.do(t, http.MethodPost, "/api/buy-requests", "buyer-1", map[string]string{"item_id": itemCreated.ID})
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusConflict)

	// Принять может только продавец.
	resp = f.do(t, http.MethodPost, "/api/buy-requests/"+request.ID+"/accept", "buyer-1", nil)
	requireStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/buy-requests/"+request.ID+"/accept", "seller-1", nil)
	requireStatus(t, resp, http.StatusOK)
	accepted := decode[acceptBuyRequestResponse](t, resp)
	if accepted.BuyRequest.Status != domain.BuyRequestStatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.BuyRequest.Status)
	}
	if accepted.Transaction.Status != domain.TransactionStatusInProgress {
		t.Fatalf("expected in_progress transaction, got %s", accepted.Transaction.Status)
	}

	resp = f.do(t, http.MethodGet, "/api/buy-requests?role=seller", "seller-1", nil)
	requireStatus(t, resp, http.StatusOK)
	listed := decode[[]domain.BuyRequest](t, resp)
	if len(listed) != 1 {
		t.Fatalf("expected 1 request, got %d", len(listed))
	}
}

func TestAPI_TransactionAppointmentAndCompletion(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/items", "seller-1", map[string]any{"title": "skates", "price": 40.0})
	itemCreated := decode[domain.Item](t, resp)

	resp = f.do(t, http.MethodPost, "/api/buy-requests", "buyer-1", map[string]string{"item_id": itemCreated.ID})
	request := decode[domain.BuyRequest](t, resp)

	meetup := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	resp = f.do(t, http.MethodPost, "/api/transactions/create-with-appointment", "seller-1", map[string]any{
		"conversation_id": request.ConversationID,
		"item_id":         itemCreated.ID,
		"meetup_time":     meetup,
		"meetup_place":    "library entrance",
	})
	requireStatus(t, resp, http.StatusCreated)
	tx := decode[domain.Transaction](t, resp)
	if tx.MeetupPlace != "library entrance" {
		t.Fatalf("unexpected meetup place: %q", tx.MeetupPlace)
	}

	// Повторный вызов — upsert, 200 на ту же сделку.
	resp = f.do(t, http.MethodPost, "/api/transactions/create-with-appointment", "seller-1", map[string]any{
		"conversation_id": request.ConversationID,
		"item_id":         itemCreated.ID,
		"meetup_place":    "cafeteria",
	})
	requireStatus(t, resp, http.StatusOK)
	same := decode[domain.Transaction](t, resp)
	if same.ID != tx.ID {
		t.Fatalf("expected upsert into %s, got %s", tx.ID, same.ID)
	}

	// Пустой PATCH — 400.
	resp = f.do(t, http.MethodPatch, "/api/transactions/"+tx.ID, "buyer-1", map[string]any{})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	// Подтверждения обеих сторон завершают сделку.
	resp = f.do(t, http.MethodPatch, "/api/transactions/"+tx.ID, "buyer-1", map[string]any{"buyer_confirmed": true})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = f.do(t, http.MethodPatch, "/api/transactions/"+tx.ID, "seller-1", map[string]any{"seller_confirmed": true})
	requireStatus(t, resp, http.StatusOK)
	completed := decode[domain.Transaction](t, resp)
	if completed.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	// Отмена завершённой сделки — 409.
	resp = f.do(t, http.MethodPost, "/api/transactions/"+tx.ID+"/cancel", "buyer-1", nil)
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusConflict)
}

func TestAPI_ReviewFlow(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/items", "seller-1", map[string]any{"title": "keyboard", "price": 30.0})
	itemCreated := decode[domain.Item](t, resp)

	resp = f.do(t, http.MethodPost, "/api/buy-requests", "buyer-1", map[string]string{"item_id": itemCreated.ID})
	request := decode[domain.BuyRequest](t, resp)

	resp = f.do(t, http.MethodPost, "/api/buy-requests/"+request.ID+"/accept", "seller-1", nil)
	accepted := decode[acceptBuyRequestResponse](t, resp)
	txID := accepted.Transaction.ID

	// Отзыв по незавершённой сделке — 409.
	resp = f.do(t, http.MethodPost, "/api/reviews", "buyer-1", map[string]any{
		"transaction_id": txID, "rating": 5, "comment": "great seller",
	})
	requireStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = f.do(t, http.MethodPatch, "/api/transactions/"+txID, "buyer-1", map[string]any{"buyer_confirmed": true})
	resp.Body.Close()
	resp = f.do(t, http.MethodPatch, "/api/transactions/"+txID, "seller-1", map[string]any{"seller_confirmed": true})
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/reviews", "buyer-1", map[string]any{
		"transaction_id": txID, "rating": 5, "comment": "great seller",
	})
	requireStatus(t, resp, http.StatusCreated)
	created := decode[domain.Review](t, resp)
	if created.RevieweeID != "seller-1" {
		t.Fatalf("expected reviewee seller-1, got %s", created.RevieweeID)
	}

	resp = f.do(t, http.MethodPost, "/api/reviews/"+created.ID+"/response", "seller-1", map[string]string{"text": "thanks"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/reviews?user_id=seller-1", "buyer-1", nil)
	requireStatus(t, resp, http.StatusOK)
	listed := decode[[]domain.Review](t, resp)
	if len(listed) != 1 {
		t.Fatalf("expected 1 review, got %d", len(listed))
	}

	resp = f.do(t, http.MethodDelete, "/api/reviews/"+created.ID, "buyer-1", nil)
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusNoContent)
}

func TestAPI_NotificationStream(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/notifications/stream", nil)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	req.Header.Set("Authorization", "Bearer dev:user-1")

	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	// Первый фрейм — комментарий о подключении.
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.HasPrefix(line, ":") {
		t.Fatalf("expected comment frame, got %q", line)
	}

	f.hub.SendToUser("user-1", domain.Event{Type: domain.EventBuyRequestUpdate, Data: map[string]string{"id": "req-1"}})

	deadline := time.After(2 * time.Second)
	got := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "event:") {
				got <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				return
			}
		}
	}()

	select {
	case eventType := <-got:
		if eventType != string(domain.EventBuyRequestUpdate) {
			t.Fatalf("unexpected event type: %s", eventType)
		}
	case <-deadline:
		t.Fatal("event not received over stream")
	}
}

func TestAPI_MalformedBodyReturns400(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/items", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	req.Header.Set("Authorization", "Bearer dev:seller-1")

	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	requireStatus(t, resp, http.StatusBadRequest)
}

func TestWriteSSEFormat(t *testing.T) {
	recorder := httptest.NewRecorder()
	err := writeSSE(recorder, domain.Event{Type: domain.EventTransactionUpdate, Data: map[string]string{"id": "tx-1"}})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	want := fmt.Sprintf("event: %s\ndata: ", domain.EventTransactionUpdate)
	if !strings.HasPrefix(recorder.Body.String(), want) {
		t.Fatalf("unexpected frame: %q", recorder.Body.String())
	}
	if !strings.HasSuffix(recorder.Body.String(), "\n\n") {
		t.Fatalf("frame must end with blank line: %q", recorder.Body.String())
	}
}
