package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

// devPrefix — схема dev-credential'ов вида "dev:<user_id>".
const devPrefix = "dev:"

// StaticService — Authenticator по таблице токенов. Продакшен-провайдер
// (Firebase и т.п.) живёт за тем же интерфейсом снаружи ядра; для
// разработки и тестов достаточно статической таблицы плюс, опционально,
// dev-схемы, где credential кодирует id пользователя напрямую.
type StaticService struct {
	mu       sync.RWMutex
	tokens   map[string]string
	allowDev bool
}

// NewStaticService создаёт аутентификатор со статической таблицей токенов.
func NewStaticService(tokens map[string]string, allowDev bool) *StaticService {
	copied := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		copied[token] = userID
	}
	return &StaticService{tokens: copied, allowDev: allowDev}
}

// Authenticate возвращает id пользователя или ErrInvalidCredential.
func (s *StaticService) Authenticate(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", domain.ErrInvalidCredential
	}

	s.mu.RLock()
	userID, ok := s.tokens[credential]
	s.mu.RUnlock()
	if ok {
		return userID, nil
	}

	if s.allowDev && strings.HasPrefix(credential, devPrefix) {
		userID := strings.TrimPrefix(credential, devPrefix)
		if userID != "" {
			return userID, nil
		}
	}

	return "", domain.ErrInvalidCredential
}

// AddToken регистрирует токен для пользователя.
func (s *StaticService) AddToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// MockService — конфигурируемая заглушка Authenticator для тестов.
type MockService struct {
	UserID string
	Err    error

	Calls int
}

// NewMockService возвращает mock, аутентифицирующий всех как UserID.
func NewMockService(userID string) *MockService {
	return &MockService{UserID: userID}
}

// Authenticate возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Authenticate(ctx context.Context, credential string) (string, error) {
	m.Calls++
	return m.UserID, m.Err
}

var _ domain.Authenticator = (*StaticService)(nil)
var _ domain.Authenticator = (*MockService)(nil)
