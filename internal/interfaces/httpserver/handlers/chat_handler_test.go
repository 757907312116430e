package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/handlers"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/middleware"
)

type mockChatService struct {
	HandleMessageFunc func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error)
}

func (m *mockChatService) HandleMessage(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	if m.HandleMessageFunc != nil {
		return m.HandleMessageFunc(ctx, req)
	}
	return &agent.ChatResponse{}, nil
}

// newChatRouter mounts the handler behind the tenant middleware, matching
// the production chain from the tenant scope down.
func newChatRouter(h *handlers.ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.TenantMiddleware())
	r.Post("/v1/chat", h.HandleChat)
	return r
}

func postChat(t *testing.T, router http.Handler, tenantHeader, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if tenantHeader != "" {
		req.Header.Set("X-Tenant-ID", tenantHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestChatHandler_ReturnsDecision(t *testing.T) {
	var got agent.ChatRequest
	mock := &mockChatService{
		HandleMessageFunc: func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
			got = req
			return &agent.ChatResponse{
				ConversationID: "c1",
				MessageID:      "m1",
				Reply:          "You can export invoices from the billing page.",
				Action:         "reply",
				Confidence:     0.82,
			}, nil
		},
	}
	router := newChatRouter(handlers.NewChatHandler(mock))

	w := postChat(t, router, "acme", `{"message": "How do I export invoices?", "channel": "web"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	var resp agent.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Action != "reply" {
		t.Errorf("action = %q, want %q", resp.Action, "reply")
	}
	if resp.ConversationID != "c1" {
		t.Errorf("conversation_id = %q, want %q", resp.ConversationID, "c1")
	}
	if got.TenantID != "acme" {
		t.Errorf("service saw tenant %q, want %q from header", got.TenantID, "acme")
	}
	if got.Message != "How do I export invoices?" {
		t.Errorf("service saw message %q", got.Message)
	}
}

func TestChatHandler_TenantFromBodyWhenHeaderAbsent(t *testing.T) {
	var got agent.ChatRequest
	mock := &mockChatService{
		HandleMessageFunc: func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
			got = req
			return &agent.ChatResponse{}, nil
		},
	}
	router := newChatRouter(handlers.NewChatHandler(mock))

	w := postChat(t, router, "", `{"tenant_id": "acme", "message": "hello"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if got.TenantID != "acme" {
		t.Errorf("service saw tenant %q, want body tenant", got.TenantID)
	}
}

func TestChatHandler_HeaderWinsOverBodyTenant(t *testing.T) {
	var got agent.ChatRequest
	mock := &mockChatService{
		HandleMessageFunc: func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
			got = req
			return &agent.ChatResponse{}, nil
		},
	}
	router := newChatRouter(handlers.NewChatHandler(mock))

	postChat(t, router, "acme", `{"tenant_id": "other", "message": "hello"}`)

	if got.TenantID != "acme" {
		t.Errorf("service saw tenant %q, want header tenant", got.TenantID)
	}
}

func TestChatHandler_Validation(t *testing.T) {
	tests := []struct {
		name       string
		tenant     string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed json",
			tenant:     "acme",
			body:       `{"message": `,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "no tenant anywhere",
			tenant:     "",
			body:       `{"message": "hello"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "tenant_required",
		},
		{
			name:       "message field absent",
			tenant:     "acme",
			body:       `{}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "message is required",
		},
		{
			name:       "message empty string",
			tenant:     "acme",
			body:       `{"message": ""}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "message is required",
		},
		{
			name:       "message id not a uuid",
			tenant:     "acme",
			body:       `{"message": "hello", "message_id": "msg-1"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "message_id must be a uuid",
		},
		{
			name:       "conversation id not a uuid",
			tenant:     "acme",
			body:       `{"message": "hello", "conversation_id": "conv-1"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "conversation_id must be a uuid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			mock := &mockChatService{
				HandleMessageFunc: func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
					called = true
					return &agent.ChatResponse{}, nil
				},
			}
			router := newChatRouter(handlers.NewChatHandler(mock))

			w := postChat(t, router, tt.tenant, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := errorBody(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if called {
				t.Error("service must not be called on validation failure")
			}
		})
	}
}

func TestChatHandler_WhitespaceMessageReachesService(t *testing.T) {
	var got agent.ChatRequest
	mock := &mockChatService{
		HandleMessageFunc: func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
			got = req
			return &agent.ChatResponse{Action: "clarify"}, nil
		},
	}
	router := newChatRouter(handlers.NewChatHandler(mock))

	w := postChat(t, router, "acme", `{"message": "   "}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: whitespace is the decider's call, not the handler's", w.Code)
	}
	if got.Message != "   " {
		t.Errorf("service saw message %q, want whitespace preserved", got.Message)
	}
}

func TestChatHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "unknown tenant",
			err:        fmt.Errorf("resolve tenant: %w", agent.ErrTenantNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "tenant not found",
		},
		{
			name:       "unknown conversation",
			err:        fmt.Errorf("load conversation: %w", agent.ErrConversationNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "conversation not found",
		},
		{
			name: "cross-tenant resource",
			err: &agent.TenantMismatchError{
				RequestTenant:  "acme",
				ResourceTenant: "globex",
				Resource:       "conversation c9",
			},
			wantStatus: http.StatusForbidden,
			wantError:  "tenant mismatch",
		},
		{
			name:       "pipeline failure",
			err:        fmt.Errorf("generate: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockChatService{
				HandleMessageFunc: func(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
					return nil, tt.err
				},
			}
			router := newChatRouter(handlers.NewChatHandler(mock))

			w := postChat(t, router, "acme", `{"message": "hello"}`)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := errorBody(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}
